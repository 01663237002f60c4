// Package discount computes coupon discounts.
//
// Amounts returned by Apply and InferFromTotal are unrounded; callers round
// once with Round at the point where a figure is persisted or displayed.
package discount

import (
	"time"

	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the precision of every persisted or displayed amount.
const CurrencyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Round rounds an amount to currency precision, half away from zero.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(CurrencyPlaces)
}

// Apply returns the discount a coupon grants on subtotal. A fixed discount
// never exceeds the subtotal, so the discounted total is never negative.
func Apply(subtotal decimal.Decimal, c models.Coupon) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}

	switch c.DiscountType {
	case models.DiscountFixed:
		return decimal.Min(c.DiscountValue, subtotal)
	case models.DiscountPercentage:
		return subtotal.Mul(c.DiscountValue).Div(hundred)
	default:
		return decimal.Zero
	}
}

// InferFromTotal recovers the discount from an amount that already had the
// coupon applied, for views that stored only the final figure and the coupon.
// preDiscount caps a fixed discount when known and may be zero otherwise.
func InferFromTotal(preDiscount, postDiscount decimal.Decimal, c models.Coupon) (decimal.Decimal, error) {
	const op = "discount.InferFromTotal"

	switch c.DiscountType {
	case models.DiscountFixed:
		if preDiscount.IsPositive() {
			return decimal.Min(c.DiscountValue, preDiscount), nil
		}
		return c.DiscountValue, nil
	case models.DiscountPercentage:
		if c.DiscountValue.GreaterThanOrEqual(hundred) || !c.DiscountValue.IsPositive() {
			return decimal.Zero, apperr.Validation(op, "percentage %s cannot be inverted", c.DiscountValue)
		}
		original := postDiscount.Mul(hundred).Div(hundred.Sub(c.DiscountValue))
		return original.Sub(postDiscount), nil
	default:
		return decimal.Zero, apperr.Validation(op, "unknown discount type %q", c.DiscountType)
	}
}

// ValidateDefinition enforces the creation-time coupon invariants. Percentage
// values must stay below 100 so InferFromTotal never divides by zero.
func ValidateDefinition(c models.Coupon) error {
	const op = "discount.ValidateDefinition"

	if c.Code == "" {
		return apperr.Validation(op, "coupon code is required")
	}

	switch c.DiscountType {
	case models.DiscountPercentage:
		if !c.DiscountValue.IsPositive() || c.DiscountValue.GreaterThanOrEqual(hundred) {
			return apperr.Validation(op, "percentage discount must be greater than 0 and less than 100, got %s", c.DiscountValue)
		}
	case models.DiscountFixed:
		if !c.DiscountValue.IsPositive() {
			return apperr.Validation(op, "fixed discount must be greater than 0, got %s", c.DiscountValue)
		}
	default:
		return apperr.Validation(op, "unknown discount type %q", c.DiscountType)
	}

	if c.UsageLimit != nil && *c.UsageLimit <= 0 {
		return apperr.Validation(op, "usage limit must be positive")
	}

	return nil
}

// ValidateRedemption checks that c can be redeemed at now. Expiry is checked
// regardless of the stored active flag.
func ValidateRedemption(c models.Coupon, now time.Time) error {
	const op = "discount.ValidateRedemption"

	if err := ValidateDefinition(c); err != nil {
		return apperr.InvalidCoupon(op, "coupon %s is malformed", c.Code)
	}
	if !now.Before(c.ExpiresAt) {
		return apperr.InvalidCoupon(op, "coupon %s expired", c.Code)
	}
	if !c.Active {
		return apperr.InvalidCoupon(op, "coupon %s is not active", c.Code)
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return apperr.InvalidCoupon(op, "coupon %s reached its usage limit", c.Code)
	}

	return nil
}
