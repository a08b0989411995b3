// Package money holds the fixed-point helpers shared by the ledger and usage
// pricing code. All credit amounts are shopspring decimals; binary floats never
// touch a balance.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultScale is the number of fractional digits kept on ledger amounts.
const DefaultScale int32 = 8

var ErrInvalidAmount = errors.New("invalid_amount")

// Round rounds half-up (away from zero) to scale fractional digits.
func Round(d decimal.Decimal, scale int32) decimal.Decimal {
	if scale < 0 {
		scale = DefaultScale
	}
	return d.Round(scale)
}

// Normalize rounds values read back from storage. Some drivers (sqlite) hand
// numeric columns back as float64; rounding to the ledger scale removes the
// representation noise without touching exact values.
func Normalize(d decimal.Decimal, scale int32) decimal.Decimal {
	return Round(d, scale)
}

// Parse parses a decimal string, rejecting empty input.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FitsScale reports whether d has no significant digits beyond scale.
func FitsScale(d decimal.Decimal, scale int32) bool {
	return d.Equal(d.Truncate(scale))
}

// IsPositive reports whether d is strictly greater than zero once rounded to scale.
func IsPositive(d decimal.Decimal, scale int32) bool {
	return Round(d, scale).IsPositive()
}

// Sum adds values exactly.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
