package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
)

// StockMovement is the append-only ledger row written alongside every stock
// mutation. Quantity is the requested amount; PreviousQty/NewQty capture the
// applied transition so floor-at-zero updates stay auditable.
type StockMovement struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID   uuid.UUID             `gorm:"column:product_id;type:uuid;not null;index:idx_stock_movements_product"`
	StoreID     uuid.UUID             `gorm:"column:store_id;type:uuid;not null"`
	Type        enums.StockUpdateType `gorm:"column:movement_type;not null"`
	Quantity    int                   `gorm:"column:quantity;not null"`
	PreviousQty int                   `gorm:"column:previous_qty;not null"`
	NewQty      int                   `gorm:"column:new_qty;not null"`
	UnitCost    decimal.Decimal       `gorm:"column:unit_cost;type:numeric(12,4);not null;default:0"`
	TotalValue  decimal.Decimal       `gorm:"column:total_value;type:numeric(14,4);not null;default:0"`
	Reason      *string               `gorm:"column:reason"`
	Actor       string                `gorm:"column:actor;not null"`
	Reference   *string               `gorm:"column:reference"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime;index:idx_stock_movements_created"`
}
