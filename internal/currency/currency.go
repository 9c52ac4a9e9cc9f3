// Package currency holds the monetary helpers shared by the ledger. All
// amounts are decimal currency values, never integer minor units or floats.
package currency

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the precision of every stored and reported amount.
const Places = 2

var hundred = decimal.NewFromInt(100)

// Round rounds to cents, half away from zero.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(Places)
}

// Percent returns amount * pct / 100, unrounded.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// Parse reads a decimal amount and rejects more than two fractional digits.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if !d.Equal(Round(d)) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d decimal places", s, Places)
	}
	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Max0 clamps negative values to zero.
func Max0(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Sum adds the given amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
