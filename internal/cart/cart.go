// Package cart holds shopping cart lines for guests and signed-in users.
package cart

import (
	"context"
	"errors"

	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/inventory"
	"github.com/shopspring/decimal"
)

// Cart is the aggregate over one Repository. Every mutation goes to the
// repository first and the lines are then re-read from it, so a server cart
// always reflects what storage holds.
type Cart struct {
	repo  Repository
	lines []Line
}

// Open loads the cart held by repo.
func Open(ctx context.Context, repo Repository) (*Cart, error) {
	c := &Cart{repo: repo}
	if err := c.reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Line(key inventory.VariantKey) (Line, bool) {
	key = key.Normalize()
	for _, l := range c.lines {
		if l.Key() == key {
			return l, true
		}
	}
	return Line{}, false
}

// Subtotal is the unrounded sum of unit price times quantity.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// AddLine merges line into the cart. When the merged quantity would pass the
// stock ceiling the cart is left unchanged and a warning is returned.
func (c *Cart) AddLine(ctx context.Context, line Line) (*Warning, error) {
	const op = "cart.AddLine"

	key := line.Key()
	if err := key.Validate(op); err != nil {
		return nil, err
	}
	if line.Quantity <= 0 {
		return nil, apperr.Validation(op, "quantity must be a positive integer")
	}
	line.ProductID, line.ColorCode, line.Size = key.ProductID, key.ColorCode, key.Size

	merged := line.Quantity
	if existing, ok := c.Line(key); ok {
		merged += existing.Quantity
	}
	if merged > line.MaxStock {
		return &Warning{Key: key, Requested: merged, Available: line.MaxStock}, nil
	}

	if err := c.repo.Add(ctx, line); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return nil, c.reload(ctx)
}

// UpdateQuantity sets the quantity of an existing line. A quantity above the
// line's stock ceiling is refused with a warning and the cart is unchanged.
func (c *Cart) UpdateQuantity(ctx context.Context, key inventory.VariantKey, quantity int) (*Warning, error) {
	const op = "cart.UpdateQuantity"

	key = key.Normalize()
	if err := key.Validate(op); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, apperr.Validation(op, "quantity must be a positive integer")
	}

	line, ok := c.Line(key)
	if !ok {
		return nil, apperr.NotFound(op, "product %d (%s/%s) is not in the cart", key.ProductID, key.ColorCode, key.Size)
	}
	if quantity > line.MaxStock {
		return &Warning{Key: key, Requested: quantity, Available: line.MaxStock}, nil
	}

	return nil, c.setQuantity(ctx, op, key, quantity)
}

// Step changes a line's quantity by delta the way a +/- control does: the
// result is clamped to between 1 and the stock ceiling instead of refused.
func (c *Cart) Step(ctx context.Context, key inventory.VariantKey, delta int) error {
	const op = "cart.Step"

	key = key.Normalize()
	if err := key.Validate(op); err != nil {
		return err
	}

	line, ok := c.Line(key)
	if !ok {
		return apperr.NotFound(op, "product %d (%s/%s) is not in the cart", key.ProductID, key.ColorCode, key.Size)
	}

	quantity := line.Quantity + delta
	if quantity > line.MaxStock {
		quantity = line.MaxStock
	}
	if quantity < 1 {
		quantity = 1
	}
	if quantity == line.Quantity {
		return nil
	}

	return c.setQuantity(ctx, op, key, quantity)
}

// RemoveLine is unconditional; removing an absent line is not an error.
func (c *Cart) RemoveLine(ctx context.Context, key inventory.VariantKey) error {
	const op = "cart.RemoveLine"

	key = key.Normalize()
	if err := key.Validate(op); err != nil {
		return err
	}
	if err := c.repo.Remove(ctx, key); err != nil {
		return apperr.Internal(op, err)
	}
	return c.reload(ctx)
}

func (c *Cart) Clear(ctx context.Context) error {
	if err := c.repo.Clear(ctx); err != nil {
		return apperr.Internal("cart.Clear", err)
	}
	c.lines = nil
	return nil
}

func (c *Cart) setQuantity(ctx context.Context, op string, key inventory.VariantKey, quantity int) error {
	if err := c.repo.SetQuantity(ctx, key, quantity); err != nil {
		if errors.Is(err, ErrLineNotFound) {
			return apperr.NotFound(op, "product %d (%s/%s) is not in the cart", key.ProductID, key.ColorCode, key.Size)
		}
		return apperr.Internal(op, err)
	}
	return c.reload(ctx)
}

func (c *Cart) reload(ctx context.Context) error {
	lines, err := c.repo.Load(ctx)
	if err != nil {
		return apperr.Internal("cart.Load", err)
	}
	c.lines = lines
	return nil
}
