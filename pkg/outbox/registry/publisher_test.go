package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	"github.com/danielortiz-dev/vendique-backend/pkg/db/models"
	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
	"github.com/danielortiz-dev/vendique-backend/pkg/outbox"
	"github.com/danielortiz-dev/vendique-backend/pkg/outbox/payloads"
)

const testTopic = "vq-inventory-events"

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(config.PubSubConfig{InventoryTopic: testTopic})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

// wrapPayload stores data inside a marshaled envelope the way Emit does.
func wrapPayload(t *testing.T, version int, data []byte) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func TestResolveDecodesReservationPayload(t *testing.T) {
	reg := testRegistry(t)

	groupID := uuid.New()
	productID := uuid.New()
	data, err := json.Marshal(payloads.ReservationCreatedEvent{
		GroupID:    groupID,
		CustomerID: uuid.New(),
		Items:      []payloads.ReservedItem{{ProductID: productID, Quantity: 3}},
		ExpiresAt:  time.Now().Add(30 * time.Minute).UTC(),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventReservationCreated,
		AggregateType: enums.AggregateReservationGroup,
		AggregateID:   groupID,
		Payload:       wrapPayload(t, 1, data),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if resolved.Descriptor.Topic != testTopic {
		t.Fatalf("topic = %q, want %q", resolved.Descriptor.Topic, testTopic)
	}
	payload, ok := resolved.Payload.(*payloads.ReservationCreatedEvent)
	if !ok {
		t.Fatalf("payload type = %T", resolved.Payload)
	}
	if payload.GroupID != groupID {
		t.Fatalf("group id = %s, want %s", payload.GroupID, groupID)
	}
	if len(payload.Items) != 1 || payload.Items[0].ProductID != productID || payload.Items[0].Quantity != 3 {
		t.Fatalf("items decoded wrong: %+v", payload.Items)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope not carried through: %+v", resolved.Envelope)
	}
}

func TestResolveDecodesStockPayload(t *testing.T) {
	reg := testRegistry(t)

	productID := uuid.New()
	data, err := json.Marshal(payloads.StockAdjustedEvent{
		ProductID:    productID,
		StoreID:      uuid.New(),
		MovementType: enums.StockUpdateSale,
		Quantity:     5,
		PreviousQty:  12,
		NewQty:       7,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventStockAdjusted,
		AggregateType: enums.AggregateProduct,
		AggregateID:   productID,
		Payload:       wrapPayload(t, 1, data),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	payload, ok := resolved.Payload.(*payloads.StockAdjustedEvent)
	if !ok {
		t.Fatalf("payload type = %T", resolved.Payload)
	}
	if payload.MovementType != enums.StockUpdateSale {
		t.Fatalf("movement type = %s", payload.MovementType)
	}
	if payload.PreviousQty != 12 || payload.NewQty != 7 {
		t.Fatalf("quantities decoded wrong: %+v", payload)
	}
}

// Every event type the worker emits must have a live registration pointing at
// the inventory topic, otherwise its rows would dead-letter on first touch.
func TestResolveCoversEveryEmittedEvent(t *testing.T) {
	reg := testRegistry(t)

	pairs := map[enums.OutboxEventType]enums.OutboxAggregateType{
		enums.EventStockAdjusted:        enums.AggregateProduct,
		enums.EventStockBulkAdjusted:    enums.AggregateStockBatch,
		enums.EventStockLow:             enums.AggregateProduct,
		enums.EventReservationCreated:   enums.AggregateReservationGroup,
		enums.EventReservationConfirmed: enums.AggregateReservationGroup,
		enums.EventReservationReleased:  enums.AggregateReservationGroup,
		enums.EventReservationExpired:   enums.AggregateReservationGroup,
	}

	for eventType, aggregate := range pairs {
		resolved, err := reg.Resolve(models.OutboxEvent{
			EventType:     eventType,
			AggregateType: aggregate,
			AggregateID:   uuid.New(),
			Payload:       wrapPayload(t, 1, []byte(`{}`)),
		})
		if err != nil {
			t.Fatalf("resolve %s: %v", eventType, err)
		}
		if resolved.Descriptor.Topic != testTopic {
			t.Fatalf("%s routed to %q", eventType, resolved.Descriptor.Topic)
		}
		if resolved.Payload == nil {
			t.Fatalf("%s resolved without payload", eventType)
		}
	}
}

func TestResolveRejectsBadRows(t *testing.T) {
	reg := testRegistry(t)

	cases := []struct {
		name    string
		event   models.OutboxEvent
		wantMsg string
	}{
		{
			name: "unknown event type",
			event: models.OutboxEvent{
				EventType:     enums.OutboxEventType("order.created"),
				AggregateType: enums.AggregateProduct,
				AggregateID:   uuid.New(),
				Payload:       wrapPayload(t, 1, []byte(`{}`)),
			},
			wantMsg: "no descriptor registered",
		},
		{
			name: "aggregate mismatch",
			event: models.OutboxEvent{
				EventType:     enums.EventReservationCreated,
				AggregateType: enums.AggregateProduct,
				AggregateID:   uuid.New(),
				Payload:       wrapPayload(t, 1, []byte(`{}`)),
			},
			wantMsg: "expects aggregate reservation_group",
		},
		{
			name: "missing aggregate id",
			event: models.OutboxEvent{
				EventType:     enums.EventStockAdjusted,
				AggregateType: enums.AggregateProduct,
				AggregateID:   uuid.Nil,
				Payload:       wrapPayload(t, 1, []byte(`{}`)),
			},
			wantMsg: "aggregate id is empty",
		},
		{
			name: "malformed envelope",
			event: models.OutboxEvent{
				EventType:     enums.EventStockLow,
				AggregateType: enums.AggregateProduct,
				AggregateID:   uuid.New(),
				Payload:       json.RawMessage(`{"version":`),
			},
			wantMsg: "malformed envelope",
		},
		{
			name: "envelope version zero",
			event: models.OutboxEvent{
				EventType:     enums.EventStockLow,
				AggregateType: enums.AggregateProduct,
				AggregateID:   uuid.New(),
				Payload:       wrapPayload(t, 0, []byte(`{}`)),
			},
			wantMsg: "envelope version missing",
		},
		{
			name: "null payload data",
			event: models.OutboxEvent{
				EventType:     enums.EventStockLow,
				AggregateType: enums.AggregateProduct,
				AggregateID:   uuid.New(),
				Payload:       wrapPayload(t, 1, []byte(`null`)),
			},
			wantMsg: "envelope data is empty",
		},
		{
			name: "data does not match schema",
			event: models.OutboxEvent{
				EventType:     enums.EventStockAdjusted,
				AggregateType: enums.AggregateProduct,
				AggregateID:   uuid.New(),
				Payload:       wrapPayload(t, 1, []byte(`{"quantity":"three"}`)),
			},
			wantMsg: "decode stock_adjusted data",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Resolve(tc.event)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tc.wantMsg)
			}
			if !IsNonRetryable(err) {
				t.Fatalf("resolve failure should be non-retryable: %v", err)
			}
		})
	}
}

// Version bumps happen on the producer side first. Old rows keep version 1
// while new rows carry higher ones; the registry must accept both.
func TestResolveAcceptsNewerEnvelopeVersions(t *testing.T) {
	reg := testRegistry(t)

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventStockLow,
		AggregateType: enums.AggregateProduct,
		AggregateID:   uuid.New(),
		Payload:       wrapPayload(t, 3, []byte(`{"new_qty":2,"threshold":5}`)),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Envelope.Version != 3 {
		t.Fatalf("envelope version = %d, want 3", resolved.Envelope.Version)
	}
}

func TestIsNonRetryable(t *testing.T) {
	inner := errors.New("schema drift")
	wrapped := fmt.Errorf("resolve row: %w", NewNonRetryableError(inner))

	if !IsNonRetryable(wrapped) {
		t.Fatalf("marker lost through wrapping")
	}
	if !errors.Is(wrapped, inner) {
		t.Fatalf("underlying error lost through marker")
	}
	if IsNonRetryable(errors.New("dial tcp: connection refused")) {
		t.Fatalf("plain error misread as non-retryable")
	}
	if IsNonRetryable(nil) {
		t.Fatalf("nil misread as non-retryable")
	}
}

func TestNewRequiresTopic(t *testing.T) {
	if _, err := New(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected error for empty topic")
	}
	if _, err := New(config.PubSubConfig{InventoryTopic: "   "}); err == nil {
		t.Fatalf("expected error for blank topic")
	}
}
