package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/danielortiz-dev/vendique-backend/pkg/db"
	"github.com/danielortiz-dev/vendique-backend/pkg/db/models"
	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
	"github.com/danielortiz-dev/vendique-backend/pkg/pagination"
)

// Repository defines persistence operations for products, reservations and
// the movement ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	UpdateProductStock(ctx context.Context, id uuid.UUID, fromVersion int64, newQuantity int) error
	InsertReservations(ctx context.Context, rows []models.StockReservation) error
	FindByGroup(ctx context.Context, groupID uuid.UUID) ([]models.StockReservation, error)
	FindPendingByGroup(ctx context.Context, groupID uuid.UUID) ([]models.StockReservation, error)
	MarkGroupReleased(ctx context.Context, groupID uuid.UUID, at time.Time) (int64, error)
	MarkGroupConfirmed(ctx context.Context, groupID, orderID uuid.UUID, at time.Time) (int64, error)
	MarkGroupExpired(ctx context.Context, groupID uuid.UUID, at time.Time) (int64, error)
	FindExpiredGroupIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	InsertMovement(ctx context.Context, row *models.StockMovement) error
	ListMovements(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.StockMovement, string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

// FindProduct loads a product regardless of its soft-delete flag so callers
// can distinguish missing from deleted.
func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindProductsByIDs loads every requested product in a single query.
func (r *repository) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&rows).Error
	return rows, err
}

// UpdateProductStock writes the new quantity conditioned on the version the
// caller read. Zero matched rows means another writer got there first; the
// caller retries the whole operation with fresh reads.
func (r *repository) UpdateProductStock(ctx context.Context, id uuid.UUID, fromVersion int64, newQuantity int) error {
	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND version = ?", id, fromVersion).
		Updates(map[string]any{
			"stock_quantity": newQuantity,
			"version":        gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return dbpkg.ErrStaleVersion
	}
	return nil
}

func (r *repository) InsertReservations(ctx context.Context, rows []models.StockReservation) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// FindByGroup returns every row in a reservation group regardless of status.
// Callers use it to tell an unknown group apart from a settled one.
func (r *repository) FindByGroup(ctx context.Context, groupID uuid.UUID) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// FindPendingByGroup returns the group's pending rows. Terminal rows are
// excluded; an empty result means the group is unknown or fully settled.
func (r *repository) FindPendingByGroup(ctx context.Context, groupID uuid.UUID) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND status = ?", groupID, enums.ReservationStatusPending).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkGroupReleased(ctx context.Context, groupID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.StockReservation{}).
		Where("group_id = ? AND status = ?", groupID, enums.ReservationStatusPending).
		Updates(map[string]any{
			"status":      enums.ReservationStatusReleased,
			"released_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkGroupConfirmed(ctx context.Context, groupID, orderID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.StockReservation{}).
		Where("group_id = ? AND status = ?", groupID, enums.ReservationStatusPending).
		Updates(map[string]any{
			"status":       enums.ReservationStatusConfirmed,
			"order_id":     orderID,
			"confirmed_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkGroupExpired(ctx context.Context, groupID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.StockReservation{}).
		Where("group_id = ? AND status = ?", groupID, enums.ReservationStatusPending).
		Updates(map[string]any{
			"status":     enums.ReservationStatusExpired,
			"expired_at": at,
		})
	return result.RowsAffected, result.Error
}

// FindExpiredGroupIDs returns distinct groups holding pending rows whose
// expiry passed the cutoff, oldest expiry first.
func (r *repository) FindExpiredGroupIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("status = ? AND expires_at < ?", enums.ReservationStatusPending, cutoff).
		Group("group_id").
		Order("MIN(expires_at) ASC").
		Limit(limit).
		Pluck("group_id", &ids).
		Error
	return ids, err
}

func (r *repository) InsertMovement(ctx context.Context, row *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// ListMovements pages a product's ledger newest first using the shared
// created_at/id cursor.
func (r *repository) ListMovements(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.StockMovement, string, error) {
	pageSize := params.PageSize()
	cursor, err := params.Position()
	if err != nil {
		return nil, "", err
	}

	qb := r.db.WithContext(ctx).Where("product_id = ?", productID)
	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.StockMovement
	if err := qb.Order("created_at DESC").Order("id DESC").Limit(params.FetchLimit()).Find(&rows).Error; err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		nextCursor = pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return rows, nextCursor, nil
}
