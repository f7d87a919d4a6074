package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of checking a coupon against a subtotal.
type Result struct {
	Applicable     bool
	Code           string
	Type           DiscountType
	DiscountAmount decimal.Decimal
	Reason         Reason
}

// Evaluate checks c against subtotal at time now. It never mutates c.
//
// Checks run in a fixed order so an expired coupon reports "expired" even
// when it is also exhausted.
func Evaluate(c *Coupon, subtotal decimal.Decimal, now time.Time) Result {
	res := Result{Code: c.Code, Type: c.Type, DiscountAmount: decimal.Zero}

	switch {
	case !c.IsActive:
		res.Reason = ReasonInactive
	case c.ExpiresAt != nil && !now.Before(*c.ExpiresAt):
		res.Reason = ReasonExpired
	case c.MaxUses != nil && c.UsedCount >= *c.MaxUses:
		res.Reason = ReasonExhausted
	case subtotal.LessThan(c.MinOrder):
		res.Reason = ReasonBelowMinimum
	default:
		res.Applicable = true
		res.DiscountAmount = Discount(c.Type, c.Value, subtotal)
	}
	return res
}

// Discount computes the discount for a coupon type and value. The result is
// rounded to cents and always within [0, subtotal].
func Discount(typ DiscountType, value, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch typ {
	case DiscountPercentage:
		amount = subtotal.Mul(value).Div(hundred)
	case DiscountFixed:
		amount = decimal.Min(value, subtotal)
	default:
		return decimal.Zero
	}

	amount = amount.Round(2)
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}
