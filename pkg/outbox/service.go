package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/danielortiz-dev/vendique-backend/pkg/db"
	"github.com/danielortiz-dev/vendique-backend/pkg/db/models"
	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

// DomainEvent is what callers hand to Emit. Data is marshaled into the
// envelope as-is; OccurredAt defaults to now and Version to EnvelopeVersion.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID

	Data       any
	Version    int
	Actor      *ActorRef
	OccurredAt time.Time
}

// Service stages domain events in the outbox table inside the caller's
// transaction, so events commit or roll back together with the state change
// that produced them.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit stages one event. The tx must be the same transaction that carries
// the domain write.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("a transaction is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row, eventID, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}

	s.logQueued(ctx, event, eventID)
	return nil
}

// EmitIfNotExists stages an event at most once per (event_type, aggregate).
// The existence check keeps the common path quiet; the partial unique index
// is the real guard, so its violation reads as an already-staged event.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("a transaction is required")
	}

	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = s.Emit(ctx, tx, event)
	if dbpkg.IsUniqueViolation(err, "ux_outbox_events_event_aggregate") {
		return nil
	}
	return err
}

func encodeEvent(event DomainEvent) (models.OutboxEvent, string, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, "", fmt.Errorf("encode event data: %w", err)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	version := event.Version
	if version == 0 {
		version = EnvelopeVersion
	}

	envelope := PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, "", fmt.Errorf("encode envelope: %w", err)
	}

	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}, envelope.EventID, nil
}

func (s *Service) logQueued(ctx context.Context, event DomainEvent, eventID string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":       eventID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
	})
	s.logg.Info(logCtx, "outbox event queued")
}
