/*
Package money provides fixed-point decimal arithmetic for redemption
money values.

WHY NOT FLOATS:
  Savings math mixes percentages, subtraction, and clamping across three
  offer-type variants; binary floats accumulate rounding error that a
  shopper or a merchant's end-of-day reconciliation would notice. Every
  money value in this module is a decimal.Decimal with exactly two
  fractional digits, the same choice the teacher engine makes for
  quantities (generic.Amount) applied here to currency.

SEE ALSO:
  - savings/calculator.go: the only place PERCENTAGE/BOGO/BUNDLE math happens
*/
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrTooManyDecimals is returned when an input money value carries more
// than two fractional digits.
var ErrTooManyDecimals = errors.New("money: value has more than two fractional digits")

// Amount is a money value with exactly two fractional decimal digits.
type Amount struct {
	d decimal.Decimal
}

// Zero is the zero money amount.
var Zero = Amount{d: decimal.Zero}

// FromString parses s as a money amount, rejecting more than two
// fractional digits. This is the edge validation point referenced by
// spec §8 ("total_bill with 3 fractional digits → INVALID_ARGUMENT").
func FromString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: %w", err)
	}
	return FromDecimal(d)
}

// FromDecimal validates and wraps an existing decimal.Decimal.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if !d.Round(2).Equal(d) {
		return Amount{}, ErrTooManyDecimals
	}
	return Amount{d: d}, nil
}

// New constructs an Amount from an integer number of cents, avoiding
// any decimal parsing.
func New(cents int64) Amount {
	return Amount{d: decimal.New(cents, -2)}
}

func (a Amount) Decimal() decimal.Decimal { return a.d }

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d).Round(2)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d).Round(2)} }

// Mul multiplies by an arbitrary-precision factor (e.g. a percentage
// ratio) and rounds half-even to two digits, matching spec §4.8's
// round_half_even requirement.
func (a Amount) Mul(factor decimal.Decimal) Amount {
	return Amount{d: a.d.Mul(factor).RoundBank(2)}
}

func (a Amount) Neg() Amount { return Amount{d: a.d.Neg()} }

func (a Amount) IsNegative() bool    { return a.d.IsNegative() }
func (a Amount) IsZero() bool        { return a.d.IsZero() }
func (a Amount) IsPositive() bool    { return a.d.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }
func (a Amount) LessThan(b Amount) bool    { return a.d.LessThan(b.d) }
func (a Amount) Equal(b Amount) bool       { return a.d.Equal(b.d) }

func (a Amount) String() string { return a.d.StringFixed(2) }

// Float64 is for display/JSON only; never use for arithmetic.
func (a Amount) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}
