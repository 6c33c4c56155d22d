package domain

import "github.com/shopspring/decimal"

const (
	DefaultMinLevel = 5
	DefaultCategory = "General"
)

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	SKU      string          `json:"sku"`
	Category string          `json:"category"`
	Quantity int             `json:"quantity"`
	MinLevel int             `json:"minLevel"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"imageUrl,omitempty"`
}

// IsLowStock reports whether the product is at or below its reorder threshold.
func (p Product) IsLowStock() bool {
	return p.Quantity <= p.MinLevel
}

// Value is quantity times unit price.
func (p Product) Value() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// ProductForm carries product fields as entered in the edit form, before coercion.
type ProductForm struct {
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Category string `json:"category"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
	ImageURL string `json:"imageUrl"`
}
