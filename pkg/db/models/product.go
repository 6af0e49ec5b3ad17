package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product carries the stock-relevant slice of a vendor listing. Version is the
// optimistic concurrency stamp: every successful stock write increments it and
// writers condition their UPDATE on the value they read.
type Product struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID           uuid.UUID       `gorm:"column:store_id;type:uuid;not null"`
	SKU               string          `gorm:"column:sku;not null"`
	Title             string          `gorm:"column:title;not null"`
	Tags              pq.StringArray  `gorm:"column:tags;type:text[]"`
	PriceCents        int             `gorm:"column:price_cents;not null;default:0"`
	UnitCost          decimal.Decimal `gorm:"column:unit_cost;type:numeric(12,4);not null;default:0"`
	StockQuantity     int             `gorm:"column:stock_quantity;not null;default:0"`
	LowStockThreshold int             `gorm:"column:low_stock_threshold;not null;default:0"`
	Version           int64           `gorm:"column:version;not null;default:1"`
	IsDeleted         bool            `gorm:"column:is_deleted;not null;default:false"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
