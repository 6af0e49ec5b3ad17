package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/danielortiz-dev/vendique-backend/pkg/db/models"
	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxDLQErrorLen     = 1024
	defaultDLQListSize = 50
)

// DLQRepository reads and writes outbox_dlq rows. Writes happen inside the
// publisher's batch transaction; reads serve the ops debug surface.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx stores a terminal failure. Error messages are clipped so a
// pathological driver error cannot bloat the row.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	entry.ErrorMessage = clipErrorMessage(entry.ErrorMessage)
	return tx.Create(&entry).Error
}

// FindByEventID returns the dead-lettered copy of an event, or nil when the
// event never went terminal.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var row models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &row, nil
}

// DeleteFailedBefore prunes dead-letter rows whose failure predates cutoff.
func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	result := tx.WithContext(ctx).
		Where("failed_at < ?", cutoff).
		Delete(&models.OutboxDLQ{})
	return result.RowsAffected, result.Error
}

// List returns the most recent terminal failures first, optionally narrowed
// to a single error reason. An empty reason matches everything.
func (r *DLQRepository) List(ctx context.Context, limit int, reason enums.OutboxDLQErrorReason) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = defaultDLQListSize
	}
	query := r.db.WithContext(ctx).
		Order("failed_at DESC").
		Limit(limit)
	if reason != "" {
		query = query.Where("error_reason = ?", reason)
	}
	var rows []models.OutboxDLQ
	err := query.Find(&rows).Error
	return rows, err
}

func clipErrorMessage(msg *string) *string {
	if msg == nil || len(*msg) <= maxDLQErrorLen {
		return msg
	}
	clipped := (*msg)[:maxDLQErrorLen]
	return &clipped
}
