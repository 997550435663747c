/*
Package savings implements the pure savings calculation (component C8):
(offer, total_bill, optional final_amount) → (discount, final).

No I/O, no clock — a deterministic function of its inputs, in the same
spirit as the teacher's generic policy functions (factory/policy.go)
but for three offer-type variants instead of accrual rules.
*/
package savings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/redemption-core/money"
	"github.com/warp/redemption-core/store"
)

// ErrInvalidDiscountValue is returned when a PERCENTAGE offer's
// discount_value does not parse as a number (spec §8: "twenty" →
// INVALID_ARGUMENT at offer-load time).
var ErrInvalidDiscountValue = errors.New("savings: discount_value is not numeric")

// ErrNegativeDiscount is returned when a caller-supplied final_amount
// implies a negative discount.
var ErrNegativeDiscount = errors.New("savings: supplied final_amount exceeds total_bill")

// Result is the computed savings for one redemption.
type Result struct {
	Discount money.Amount
	Final    money.Amount
}

// Calculate computes discount and final per spec §4.8. If finalAmount
// is non-nil, it takes precedence over the offer-type math entirely.
func Calculate(offer store.Offer, totalBill money.Amount, finalAmount *money.Amount) (Result, error) {
	if finalAmount != nil {
		discount := totalBill.Sub(*finalAmount)
		if discount.IsNegative() {
			return Result{}, ErrNegativeDiscount
		}
		return Result{Discount: discount, Final: *finalAmount}, nil
	}

	switch offer.OfferType {
	case store.OfferPercentage:
		return calculatePercentage(offer, totalBill)
	case store.OfferBOGO:
		return calculateBOGO(offer, totalBill)
	case store.OfferBundle:
		return calculateBundle(offer, totalBill)
	default:
		return Result{}, fmt.Errorf("savings: unknown offer type %q", offer.OfferType)
	}
}

// ParsePercentage extracts the numeric prefix of a discount_value like
// "20%" or "20", rejecting anything that isn't a plain number ("twenty").
func ParsePercentage(discountValue string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(discountValue), "%"))
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidDiscountValue
	}
	return d, nil
}

func calculatePercentage(offer store.Offer, totalBill money.Amount) (Result, error) {
	pct, err := ParsePercentage(offer.DiscountValue)
	if err != nil {
		return Result{}, err
	}
	ratio := pct.Div(decimal.NewFromInt(100))
	discount := totalBill.Mul(ratio) // RoundBank inside Mul: round_half_even
	final := totalBill.Sub(discount)
	return Result{Discount: discount, Final: final}, nil
}

// calculateBOGO treats offer.OriginalPrice as the price of the free
// item. If it exceeds the bill, the discount clamps to the bill total
// (final = 0) rather than going negative — the spec's explicit
// redesign of the original's unclamped behavior.
func calculateBOGO(offer store.Offer, totalBill money.Amount) (Result, error) {
	discount := offer.OriginalPrice
	if discount.GreaterThan(totalBill) {
		discount = totalBill
	}
	final := totalBill.Sub(discount)
	return Result{Discount: discount, Final: final}, nil
}

// calculateBundle discounts by the offer-defined original-minus-bundle
// delta; final is total_bill minus that discount even when the bill
// doesn't exactly equal the bundle price, per spec §4.8.
func calculateBundle(offer store.Offer, totalBill money.Amount) (Result, error) {
	discount := offer.OriginalPrice.Sub(offer.DiscountedPrice)
	final := totalBill.Sub(discount)
	return Result{Discount: discount, Final: final}, nil
}
