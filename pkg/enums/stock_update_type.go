package enums

import "fmt"

// StockUpdateType classifies a stock mutation. Purchase and return receipts
// add to quantity, sale/damage/transfer subtract (floored at zero), and
// adjustment/correction set the quantity absolutely.
type StockUpdateType string

const (
	StockUpdatePurchase   StockUpdateType = "purchase"
	StockUpdateSale       StockUpdateType = "sale"
	StockUpdateReturn     StockUpdateType = "return"
	StockUpdateDamage     StockUpdateType = "damage"
	StockUpdateTransfer   StockUpdateType = "transfer"
	StockUpdateAdjustment StockUpdateType = "adjustment"
	StockUpdateCorrection StockUpdateType = "correction"
)

var validStockUpdateTypes = []StockUpdateType{
	StockUpdatePurchase,
	StockUpdateSale,
	StockUpdateReturn,
	StockUpdateDamage,
	StockUpdateTransfer,
	StockUpdateAdjustment,
	StockUpdateCorrection,
}

// StockDirection describes how a StockUpdateType applies its quantity.
type StockDirection string

const (
	StockDirectionAdd      StockDirection = "add"
	StockDirectionSubtract StockDirection = "subtract"
	StockDirectionSet      StockDirection = "set"
)

// String implements fmt.Stringer.
func (t StockUpdateType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known StockUpdateType.
func (t StockUpdateType) IsValid() bool {
	for _, candidate := range validStockUpdateTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Direction returns how the type applies its quantity to current stock.
func (t StockUpdateType) Direction() StockDirection {
	switch t {
	case StockUpdatePurchase, StockUpdateReturn:
		return StockDirectionAdd
	case StockUpdateSale, StockUpdateDamage, StockUpdateTransfer:
		return StockDirectionSubtract
	default:
		return StockDirectionSet
	}
}

// ParseStockUpdateType converts raw input into a StockUpdateType.
func ParseStockUpdateType(value string) (StockUpdateType, error) {
	for _, candidate := range validStockUpdateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock update type %q", value)
}
