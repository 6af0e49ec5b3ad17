package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
	"github.com/danielortiz-dev/vendique-backend/pkg/pagination"
)

// Failure carries a business rejection inside a result instead of an error.
// Transport and infrastructure problems still surface as errors.
type Failure struct {
	Reason  enums.StockFailureReason `json:"reason"`
	Message string                   `json:"message,omitempty"`
}

// UpdateStockInput describes a single stock mutation.
type UpdateStockInput struct {
	ProductID uuid.UUID             `json:"product_id" validate:"required"`
	Quantity  int                   `json:"quantity" validate:"gte=0"`
	Type      enums.StockUpdateType `json:"type" validate:"required"`
	Reason    string                `json:"reason" validate:"required"`
	Actor     string                `json:"actor" validate:"required"`
	UnitCost  *decimal.Decimal      `json:"unit_cost,omitempty"`
	Reference *string               `json:"reference,omitempty"`
}

// StockUpdateResult reports the outcome of UpdateStock. MovementID identifies
// the ledger row appended for a successful change.
type StockUpdateResult struct {
	ProductID  uuid.UUID `json:"product_id"`
	Previous   int       `json:"previous"`
	New        int       `json:"new"`
	MovementID uuid.UUID `json:"movement_id"`
	Failure    *Failure  `json:"failure,omitempty"`
}

// ReserveItem is one requested product line in a reservation.
type ReserveItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

// ReserveStockInput requests an atomic multi-product hold.
type ReserveStockInput struct {
	CustomerID  uuid.UUID     `json:"customer_id" validate:"required"`
	Items       []ReserveItem `json:"items" validate:"required,min=1,dive"`
	TTL         time.Duration `json:"ttl,omitempty" validate:"gte=0"`
	ExternalRef *string       `json:"external_ref,omitempty"`
}

// ReservationItemResult is the per-item outcome of a reserve request.
// Available records the quantity on hand when the item was checked.
type ReservationItemResult struct {
	ProductID uuid.UUID                `json:"product_id"`
	Requested int                      `json:"requested"`
	Reserved  bool                     `json:"reserved"`
	Reason    enums.StockFailureReason `json:"reason,omitempty"`
	Available int                      `json:"available"`
}

// ReservationResult reports a reserve attempt. Items always covers every
// requested line so callers can show which products blocked the request.
type ReservationResult struct {
	GroupID   uuid.UUID               `json:"group_id,omitempty"`
	ExpiresAt time.Time               `json:"expires_at,omitempty"`
	Reserved  bool                    `json:"reserved"`
	Items     []ReservationItemResult `json:"items"`
}

// ReleaseInput releases every pending row in a reservation group.
type ReleaseInput struct {
	GroupID uuid.UUID `json:"group_id" validate:"required"`
	Reason  *string   `json:"reason,omitempty"`
}

// ReleaseResult reports how many rows were released and how many units went
// back onto products. UnitsRestored can fall short of the reserved total when
// a product vanished or the configured maximum clamped the restore.
type ReleaseResult struct {
	GroupID       uuid.UUID `json:"group_id"`
	Released      bool      `json:"released"`
	RowsReleased  int       `json:"rows_released"`
	UnitsRestored int       `json:"units_restored"`
	Failure       *Failure  `json:"failure,omitempty"`
}

// ConfirmInput converts a pending reservation group into an order hold.
type ConfirmInput struct {
	GroupID uuid.UUID `json:"group_id" validate:"required"`
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

// ConfirmResult reports a confirm attempt. Stock is not touched on confirm;
// it was already decremented when the group was reserved.
type ConfirmResult struct {
	GroupID       uuid.UUID `json:"group_id"`
	OrderID       uuid.UUID `json:"order_id"`
	Confirmed     bool      `json:"confirmed"`
	RowsConfirmed int       `json:"rows_confirmed"`
	Failure       *Failure  `json:"failure,omitempty"`
}

// BulkUpdateItem sets one product's stock to an absolute quantity.
// Item problems are reported per item, not as input validation.
type BulkUpdateItem struct {
	ProductID   uuid.UUID `json:"product_id"`
	NewQuantity int       `json:"new_quantity"`
}

// BulkUpdateInput applies absolute stock corrections across many products.
type BulkUpdateInput struct {
	Items  []BulkUpdateItem `json:"items" validate:"required,min=1"`
	Actor  string           `json:"actor" validate:"required"`
	Reason *string          `json:"reason,omitempty"`
}

// BulkItemResult is the per-item outcome of a bulk update.
type BulkItemResult struct {
	ProductID uuid.UUID                `json:"product_id"`
	Previous  int                      `json:"previous"`
	New       int                      `json:"new"`
	Updated   bool                     `json:"updated"`
	Reason    enums.StockFailureReason `json:"reason,omitempty"`
}

// BulkUpdateResult summarizes a bulk update batch.
type BulkUpdateResult struct {
	BatchID uuid.UUID        `json:"batch_id"`
	Updated int              `json:"updated"`
	Failed  int              `json:"failed"`
	Items   []BulkItemResult `json:"items"`
}

// SweepResult summarizes one expiry sweep pass. Units restored can trail the
// reserved total when products vanished or the configured maximum clamped a
// restore.
type SweepResult struct {
	GroupsExpired int `json:"groups_expired"`
	RowsExpired   int `json:"rows_expired"`
	UnitsRestored int `json:"units_restored"`
}

// ListMovementsInput pages through one product's movement ledger.
type ListMovementsInput struct {
	ProductID  uuid.UUID `json:"product_id" validate:"required"`
	Pagination pagination.Params
}

// MovementEntry is one ledger row in a movement page.
type MovementEntry struct {
	ID          uuid.UUID             `json:"id"`
	Type        enums.StockUpdateType `json:"type"`
	Quantity    int                   `json:"quantity"`
	PreviousQty int                   `json:"previous_qty"`
	NewQty      int                   `json:"new_qty"`
	UnitCost    decimal.Decimal       `json:"unit_cost"`
	TotalValue  decimal.Decimal       `json:"total_value"`
	Reason      *string               `json:"reason,omitempty"`
	Actor       string                `json:"actor"`
	Reference   *string               `json:"reference,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// MovementPage is a cursor page of movement history, newest first.
type MovementPage struct {
	ProductID  uuid.UUID       `json:"product_id"`
	Movements  []MovementEntry `json:"movements"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// StockLevel is a read-only stock snapshot.
type StockLevel struct {
	ProductID         uuid.UUID `json:"product_id"`
	StoreID           uuid.UUID `json:"store_id"`
	Quantity          int       `json:"quantity"`
	Version           int64     `json:"version"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	Deleted           bool      `json:"deleted"`
	UpdatedAt         time.Time `json:"updated_at"`
	Failure           *Failure  `json:"failure,omitempty"`
}
