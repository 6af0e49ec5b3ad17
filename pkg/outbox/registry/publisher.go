// Package registry maps outbox event types onto their topic, aggregate, and
// payload schema. The publisher resolves every row through it before
// publishing, so schema drift fails fast instead of reaching the broker.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	"github.com/danielortiz-dev/vendique-backend/pkg/db/models"
	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
	"github.com/danielortiz-dev/vendique-backend/pkg/outbox"
	"github.com/danielortiz-dev/vendique-backend/pkg/outbox/payloads"
)

// Descriptor links an event type to its aggregate, topic, and payload schema.
type Descriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// Resolved is a fully decoded outbox row.
type Resolved struct {
	Descriptor Descriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that can never publish successfully, no
// matter how often it is retried.
type NonRetryableError struct {
	cause error
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{cause: err}
}

func (e NonRetryableError) Error() string {
	if e.cause == nil {
		return "non-retryable error"
	}
	return e.cause.Error()
}

func (e NonRetryableError) Unwrap() error { return e.cause }

// IsNonRetryable reports whether err carries the no-retry marker anywhere in
// its chain.
func IsNonRetryable(err error) bool {
	var marker NonRetryableError
	return errors.As(err, &marker)
}

// Registry maps each supported event type to its descriptor.
type Registry struct {
	entries map[enums.OutboxEventType]Descriptor
}

// New builds the registry. Every inventory event currently publishes to the
// single configured inventory topic.
func New(cfg config.PubSubConfig) (*Registry, error) {
	topic := strings.TrimSpace(cfg.InventoryTopic)
	if topic == "" {
		return nil, fmt.Errorf("inventory topic is required")
	}

	r := &Registry{entries: make(map[enums.OutboxEventType]Descriptor)}
	r.add(enums.EventStockAdjusted, enums.AggregateProduct, topic, func() any { return &payloads.StockAdjustedEvent{} })
	r.add(enums.EventStockBulkAdjusted, enums.AggregateStockBatch, topic, func() any { return &payloads.StockBulkAdjustedEvent{} })
	r.add(enums.EventStockLow, enums.AggregateProduct, topic, func() any { return &payloads.StockLowEvent{} })
	r.add(enums.EventReservationCreated, enums.AggregateReservationGroup, topic, func() any { return &payloads.ReservationCreatedEvent{} })
	r.add(enums.EventReservationConfirmed, enums.AggregateReservationGroup, topic, func() any { return &payloads.ReservationConfirmedEvent{} })
	r.add(enums.EventReservationReleased, enums.AggregateReservationGroup, topic, func() any { return &payloads.ReservationReleasedEvent{} })
	r.add(enums.EventReservationExpired, enums.AggregateReservationGroup, topic, func() any { return &payloads.ReservationExpiredEvent{} })
	return r, nil
}

func (r *Registry) add(event enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string, factory func() any) {
	r.entries[event] = Descriptor{
		EventType:      event,
		AggregateType:  aggregate,
		Topic:          topic,
		PayloadFactory: factory,
	}
}

// Resolve validates an outbox row against its descriptor and decodes the
// typed payload. Every failure is non-retryable: a row that fails schema
// checks today will fail them on every future attempt too.
func (r *Registry) Resolve(event models.OutboxEvent) (*Resolved, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("no descriptor registered for event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("event %s expects aggregate %s, row carries %s", event.EventType, desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate id is empty"))
	}

	envelope, err := decodeEnvelope(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s data: %w", event.EventType, err))
	}

	return &Resolved{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// decodeEnvelope unpacks the stored wrapper and rejects rows whose envelope
// is structurally unusable.
func decodeEnvelope(event models.OutboxEvent) (outbox.PayloadEnvelope, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return envelope, fmt.Errorf("malformed envelope: %w", err)
	}
	if envelope.Version <= 0 {
		return envelope, fmt.Errorf("envelope version missing for %s", event.EventType)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return envelope, fmt.Errorf("envelope data is empty for %s", event.EventType)
	}
	return envelope, nil
}
