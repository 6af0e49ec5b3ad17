package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
)

// StockReservation is one product line of a reservation group. All rows
// created by a single reserve call share GroupID and expire together. Pending
// is the only state that ever transitions; confirmed, released and expired
// rows are terminal.
type StockReservation struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID     uuid.UUID               `gorm:"column:group_id;type:uuid;not null;index:idx_stock_reservations_group"`
	ProductID   uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	CustomerID  uuid.UUID               `gorm:"column:customer_id;type:uuid;not null"`
	Quantity    int                     `gorm:"column:quantity;not null"`
	Status      enums.ReservationStatus `gorm:"column:status;not null;default:pending"`
	ExternalRef *string                 `gorm:"column:external_ref"`
	OrderID     *uuid.UUID              `gorm:"column:order_id;type:uuid"`
	ExpiresAt   time.Time               `gorm:"column:expires_at;not null"`
	ConfirmedAt *time.Time              `gorm:"column:confirmed_at"`
	ReleasedAt  *time.Time              `gorm:"column:released_at"`
	ExpiredAt   *time.Time              `gorm:"column:expired_at"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
