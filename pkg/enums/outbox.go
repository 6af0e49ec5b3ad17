package enums

import "fmt"

// OutboxAggregateType identifies which aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateProduct          OutboxAggregateType = "product"
	AggregateReservationGroup OutboxAggregateType = "reservation_group"
	AggregateStockBatch       OutboxAggregateType = "stock_batch"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateProduct,
	AggregateReservationGroup,
	AggregateStockBatch,
}

// String implements fmt.Stringer.
func (a OutboxAggregateType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known OutboxAggregateType.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into an OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names the domain events the worker records for publishing.
type OutboxEventType string

const (
	EventStockAdjusted        OutboxEventType = "stock_adjusted"
	EventStockBulkAdjusted    OutboxEventType = "stock_bulk_adjusted"
	EventStockLow             OutboxEventType = "stock_low"
	EventReservationCreated   OutboxEventType = "reservation_created"
	EventReservationConfirmed OutboxEventType = "reservation_confirmed"
	EventReservationReleased  OutboxEventType = "reservation_released"
	EventReservationExpired   OutboxEventType = "reservation_expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventStockAdjusted,
	EventStockBulkAdjusted,
	EventStockLow,
	EventReservationCreated,
	EventReservationConfirmed,
	EventReservationReleased,
	EventReservationExpired,
}

// String implements fmt.Stringer.
func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known OutboxEventType.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
