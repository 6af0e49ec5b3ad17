package enums

import "fmt"

// ReservationStatus tracks the lifecycle of a stock reservation row. Pending
// is the only state that transitions; the other three are terminal.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusExpired   ReservationStatus = "expired"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusConfirmed,
	ReservationStatusReleased,
	ReservationStatusExpired,
}

// String implements fmt.Stringer.
func (s ReservationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ReservationStatus.
func (s ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status can never transition again.
func (s ReservationStatus) IsTerminal() bool {
	return s != ReservationStatusPending
}

// ParseReservationStatus converts raw input into a ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}

// StockFailureReason is the per-item status reported when a stock operation
// declines an item without raising an error.
type StockFailureReason string

const (
	StockFailureNotFound          StockFailureReason = "not_found"
	StockFailureDeleted           StockFailureReason = "deleted"
	StockFailureInsufficientStock StockFailureReason = "insufficient_stock"
	StockFailureOutOfRange        StockFailureReason = "out_of_range"
	StockFailureExpired           StockFailureReason = "expired"
	StockFailureInvalidQuantity   StockFailureReason = "invalid_quantity"
)

var validStockFailureReasons = []StockFailureReason{
	StockFailureNotFound,
	StockFailureDeleted,
	StockFailureInsufficientStock,
	StockFailureOutOfRange,
	StockFailureExpired,
	StockFailureInvalidQuantity,
}

// String implements fmt.Stringer.
func (r StockFailureReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known StockFailureReason.
func (r StockFailureReason) IsValid() bool {
	for _, candidate := range validStockFailureReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
