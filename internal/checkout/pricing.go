package checkout

import (
	"github.com/safar/storefront-checkout/internal/config"
	"github.com/safar/storefront-checkout/internal/discount"
	"github.com/shopspring/decimal"
)

// Policy is the flat tax and shipping policy applied at commit.
type Policy struct {
	TaxRate          decimal.Decimal
	ShippingFlat     decimal.Decimal
	FreeShippingOver decimal.Decimal
}

func PolicyFromConfig(cfg config.CheckoutConfig) Policy {
	return Policy{
		TaxRate:          cfg.TaxRate,
		ShippingFlat:     cfg.ShippingFlat,
		FreeShippingOver: cfg.FreeShippingOver,
	}
}

// Quote holds the figures persisted on an order, each rounded to currency
// precision from unrounded inputs.
type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// Quote prices an order. Tax is charged on the subtotal before discount and
// shipping is waived once the subtotal reaches FreeShippingOver, when set.
func (p Policy) Quote(subtotal, discountAmount decimal.Decimal) Quote {
	tax := subtotal.Mul(p.TaxRate)
	shipping := p.shipping(subtotal)
	total := subtotal.Sub(discountAmount).Add(tax).Add(shipping)

	return Quote{
		Subtotal: discount.Round(subtotal),
		Discount: discount.Round(discountAmount),
		Tax:      discount.Round(tax),
		Shipping: discount.Round(shipping),
		Total:    discount.Round(total),
	}
}

func (p Policy) shipping(subtotal decimal.Decimal) decimal.Decimal {
	if p.FreeShippingOver.IsPositive() && subtotal.GreaterThanOrEqual(p.FreeShippingOver) {
		return decimal.Zero
	}
	return p.ShippingFlat
}
