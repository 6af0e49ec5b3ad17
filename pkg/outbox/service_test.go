package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielortiz-dev/vendique-backend/pkg/db/models"
	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
	"github.com/danielortiz-dev/vendique-backend/pkg/outbox/payloads"
)

func TestEmitWrapsDataInEnvelope(t *testing.T) {
	db := newOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	productID := uuid.New()
	storeID := uuid.New()
	payload := payloads.StockAdjustedEvent{
		ProductID:    productID,
		StoreID:      storeID,
		MovementType: enums.StockUpdateSale,
		Quantity:     3,
		PreviousQty:  10,
		NewQty:       7,
	}
	err := svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventStockAdjusted,
		AggregateType: enums.AggregateProduct,
		AggregateID:   productID,
		Actor:         &ActorRef{Kind: ActorKindSystem},
		Data:          payload,
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.Where("aggregate_id = ?", productID).First(&row).Error)
	assert.Equal(t, enums.EventStockAdjusted, row.EventType)
	assert.Equal(t, enums.AggregateProduct, row.AggregateType)
	assert.Nil(t, row.PublishedAt)
	assert.Zero(t, row.AttemptCount)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, EnvelopeVersion, envelope.Version)
	_, err = uuid.Parse(envelope.EventID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), envelope.OccurredAt, 5*time.Second)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, ActorKindSystem, envelope.Actor.Kind)

	var decoded payloads.StockAdjustedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestEmitHonorsExplicitVersionAndTime(t *testing.T) {
	db := newOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	occurredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	groupID := uuid.New()
	err := svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventReservationConfirmed,
		AggregateType: enums.AggregateReservationGroup,
		AggregateID:   groupID,
		Data:          payloads.ReservationConfirmedEvent{GroupID: groupID, ItemCount: 2},
		Version:       3,
		OccurredAt:    occurredAt,
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.Where("aggregate_id = ?", groupID).First(&row).Error)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, 3, envelope.Version)
	assert.True(t, envelope.OccurredAt.Equal(occurredAt), "expected %s, got %s", occurredAt, envelope.OccurredAt)
	assert.Nil(t, envelope.Actor)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)

	err := svc.Emit(context.Background(), nil, DomainEvent{
		EventType:     enums.EventStockAdjusted,
		AggregateType: enums.AggregateProduct,
		AggregateID:   uuid.New(),
		Data:          map[string]int{"qty": 1},
	})
	require.Error(t, err)

	err = svc.EmitIfNotExists(context.Background(), nil, DomainEvent{
		EventType:     enums.EventReservationCreated,
		AggregateType: enums.AggregateReservationGroup,
		AggregateID:   uuid.New(),
		Data:          map[string]int{"qty": 1},
	})
	require.Error(t, err)
}

func TestEmitRejectsUnencodableData(t *testing.T) {
	db := newOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	err := svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventStockAdjusted,
		AggregateType: enums.AggregateProduct,
		AggregateID:   uuid.New(),
		Data:          make(chan int),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode event data")
}

func TestEmitIfNotExistsStagesOncePerAggregate(t *testing.T) {
	db := newOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	groupID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventReservationReleased,
		AggregateType: enums.AggregateReservationGroup,
		AggregateID:   groupID,
		Data:          payloads.ReservationReleasedEvent{GroupID: groupID},
	}

	require.NoError(t, svc.EmitIfNotExists(context.Background(), db, event))
	require.NoError(t, svc.EmitIfNotExists(context.Background(), db, event))

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", groupID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	other := event
	other.AggregateID = uuid.New()
	require.NoError(t, svc.EmitIfNotExists(context.Background(), db, other))

	var total int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&total).Error)
	assert.Equal(t, int64(2), total)
}
