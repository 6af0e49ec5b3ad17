package payloads

import (
	"time"

	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
	"github.com/google/uuid"
)

// StockAdjustedEvent is emitted after a single product's stock level changes.
type StockAdjustedEvent struct {
	ProductID    uuid.UUID             `json:"product_id"`
	StoreID      uuid.UUID             `json:"store_id"`
	MovementType enums.StockUpdateType `json:"movement_type"`
	Quantity     int                   `json:"quantity"`
	PreviousQty  int                   `json:"previous_qty"`
	NewQty       int                   `json:"new_qty"`
	Reason       string                `json:"reason,omitempty"`
}

// StockBulkAdjustedEvent summarizes a bulk stock update batch.
type StockBulkAdjustedEvent struct {
	BatchID      uuid.UUID `json:"batch_id"`
	AppliedCount int       `json:"applied_count"`
	FailedCount  int       `json:"failed_count"`
}

// StockLowEvent tells downstream systems a product crossed its low-stock threshold.
type StockLowEvent struct {
	ProductID uuid.UUID `json:"product_id"`
	StoreID   uuid.UUID `json:"store_id"`
	NewQty    int       `json:"new_qty"`
	Threshold int       `json:"threshold"`
}

// ReservedItem is a single product line inside a reservation group.
type ReservedItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// ReservationCreatedEvent signals a new reservation group holding stock.
type ReservationCreatedEvent struct {
	GroupID    uuid.UUID      `json:"group_id"`
	CustomerID uuid.UUID      `json:"customer_id"`
	Items      []ReservedItem `json:"items"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

// ReservationConfirmedEvent is emitted when a pending group converts into an order.
type ReservationConfirmedEvent struct {
	GroupID     uuid.UUID `json:"group_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	OrderID     uuid.UUID `json:"order_id"`
	ItemCount   int       `json:"item_count"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// ReservationReleasedEvent is emitted when a pending group is released and its
// held quantities restored.
type ReservationReleasedEvent struct {
	GroupID       uuid.UUID      `json:"group_id"`
	CustomerID    uuid.UUID      `json:"customer_id"`
	RestoredItems []ReservedItem `json:"restored_items"`
	ReleasedAt    time.Time      `json:"released_at"`
}

// ReservationExpiredEvent is emitted by the sweep when a stale group is expired.
type ReservationExpiredEvent struct {
	GroupID       uuid.UUID      `json:"group_id"`
	RestoredItems []ReservedItem `json:"restored_items"`
	ExpiredAt     time.Time      `json:"expired_at"`
}
