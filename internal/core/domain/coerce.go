package domain

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxQuantity bounds every stored and moved quantity.
const MaxQuantity = math.MaxInt32

// ParseQuantity coerces free text into a non-negative whole quantity.
// The second result is false when the text was not a usable number and 0 was substituted.
func ParseQuantity(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > MaxQuantity {
			return 0, false
		}
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > MaxQuantity {
		return 0, false
	}
	return int(f), true
}

// ParsePrice coerces free text into a non-negative decimal price.
func ParsePrice(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}
