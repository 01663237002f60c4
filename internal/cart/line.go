package cart

import (
	"fmt"

	"github.com/safar/storefront-checkout/internal/inventory"
	"github.com/shopspring/decimal"
)

// Line is one cart entry. Two lines for the same product with a different
// color or size are distinct.
type Line struct {
	ProductID int64           `json:"product_id"`
	ColorCode string          `json:"color_code"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	ColorName string          `json:"color_name,omitempty"`
	// MaxStock is the variant stock last seen for this line. It is the
	// ceiling for quantity edits, not a reservation.
	MaxStock int `json:"max_stock"`
}

func (l Line) Key() inventory.VariantKey {
	return inventory.VariantKey{ProductID: l.ProductID, ColorCode: l.ColorCode, Size: l.Size}.Normalize()
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Warning tells the shopper a quantity change was refused. The cart is left
// as it was; a warning is not an error.
type Warning struct {
	Key       inventory.VariantKey `json:"variant"`
	Requested int                  `json:"requested"`
	Available int                  `json:"available"`
}

func (w *Warning) Message() string {
	if w.Available == 0 {
		return fmt.Sprintf("product %d in %s/%s is out of stock", w.Key.ProductID, w.Key.ColorCode, w.Key.Size)
	}
	return fmt.Sprintf("only %d units of product %d in %s/%s are available",
		w.Available, w.Key.ProductID, w.Key.ColorCode, w.Key.Size)
}
