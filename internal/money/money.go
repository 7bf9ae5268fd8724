// Package money converts between the caller-facing decimal currency value and
// the integer minor units the ledger stores. All ledger arithmetic is done on
// int64 minor units.
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor units in one major unit (cents per unit).
const Scale = 100

// places is log10(Scale).
const places = 2

var ErrOutOfRange = errors.New("money: amount out of range")

var (
	scale    = decimal.NewFromInt(Scale)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// ToMinorUnits rounds d to the nearest minor unit, half away from zero.
func ToMinorUnits(d decimal.Decimal) (int64, error) {
	minor := d.Mul(scale).Round(0)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	return minor.IntPart(), nil
}

// ToDecimal renders minor units as a decimal with two fractional places.
func ToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -places)
}

// Parse reads a decimal string such as "12.34" into minor units.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return ToMinorUnits(d)
}

// Format renders minor units as a fixed two-place string ("5.00").
func Format(minor int64) string {
	return ToDecimal(minor).StringFixed(places)
}
