package domain

type MovementType string

const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

// UnknownProductName is recorded when a movement references a missing product.
const UnknownProductName = "Unknown"

func (t MovementType) Valid() bool {
	return t == MovementIn || t == MovementOut
}

// Transaction is an immutable stock movement record.
type Transaction struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"productId"`
	ProductName string       `json:"productName"`
	Type        MovementType `json:"type"`
	Quantity    int          `json:"quantity"`
	Timestamp   int64        `json:"timestamp"` // unix milliseconds
}

// ApplyMovement returns the quantity after moving amount units in direction t.
// Outward movements clamp at zero, inward ones saturate at MaxQuantity.
func ApplyMovement(quantity int, t MovementType, amount int) int {
	if t == MovementIn {
		if amount > MaxQuantity-quantity {
			return MaxQuantity
		}
		return quantity + amount
	}
	if amount >= quantity {
		return 0
	}
	return quantity - amount
}
