package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/cart"
	"github.com/safar/storefront-checkout/internal/database"
	"github.com/safar/storefront-checkout/internal/discount"
	"github.com/safar/storefront-checkout/internal/inventory"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/safar/storefront-checkout/internal/store"
	"github.com/shopspring/decimal"
)

const (
	paymentReferenceConstraint = "uq_orders_payment_reference"

	// commitLockTimeout bounds each row lock wait; a timed out wait is retried.
	commitLockTimeout = 5 * time.Second
)

type CommitRequest struct {
	UserID           int64
	AddressID        int64
	PaymentReference string
	CouponID         *int64
	// Amount is the charged amount reported by the payment provider, if any.
	Amount *decimal.Decimal
	// Cart supplies the lines and is cleared once the order is committed.
	Cart *cart.Cart
	// Since is when the current checkout began. An order already recorded
	// for the payment reference before then belongs to an earlier checkout
	// and is reported as a conflict instead of being returned.
	Since time.Time
}

// Creator turns a cart into an order in one transaction.
type Creator struct {
	db     *sqlx.DB
	policy Policy
	now    func() time.Time
}

func NewCreator(db *sqlx.DB, policy Policy) *Creator {
	return &Creator{db: db, policy: policy, now: time.Now}
}

type reservation struct {
	key      inventory.VariantKey
	quantity int
}

// Commit validates stock and coupon, then decrements stock, writes the order
// with its items and counts the coupon use, all or nothing. A payment
// reference that already produced an order for this user during the same
// checkout returns that order; duplicates arriving after a new checkout began
// are a conflict and leave the new cart alone.
func (c *Creator) Commit(ctx context.Context, req CommitRequest) (*models.Order, error) {
	const op = "checkout.Commit"

	req.PaymentReference = strings.TrimSpace(req.PaymentReference)
	if err := validateCommit(op, req); err != nil {
		return nil, err
	}

	existing, err := c.existingOrder(ctx, op, req)
	if err != nil || existing != nil {
		return existing, err
	}

	reservations := mergeLines(req.Cart.Lines())

	var order *models.Order
	err = database.WithRetry(ctx, c.db, database.DefaultTxOptions().Named(op).WithLockTimeout(commitLockTimeout), func(tx *sqlx.Tx) error {
		var err error
		order, err = c.commitTx(ctx, tx, req, reservations)
		return err
	})
	if err != nil {
		if database.IsUniqueViolation(err, paymentReferenceConstraint) {
			existing, err := c.existingOrder(ctx, op, req)
			if err == nil && existing == nil {
				err = apperr.Conflict(op, "payment reference %s is already used", req.PaymentReference)
			}
			return existing, err
		}
		if apperr.KindOf(err) != apperr.KindInternal {
			log.Warn().Err(err).Str("op", op).Int64("user_id", req.UserID).
				Str("payment_reference", req.PaymentReference).Msg("checkout rejected")
			return nil, err
		}
		log.Error().Err(err).Str("op", op).Int64("user_id", req.UserID).
			Str("payment_reference", req.PaymentReference).Msg("checkout commit failed")
		return nil, apperr.Internal(op, err)
	}

	log.Info().Int64("order_id", order.ID).Int64("user_id", order.UserID).
		Str("total", order.TotalAmount.StringFixed(2)).Msg("order created")

	if err := req.Cart.Clear(ctx); err != nil {
		log.Error().Err(err).Str("op", op).Int64("user_id", req.UserID).Int64("order_id", order.ID).
			Msg("order committed but cart could not be cleared")
	}

	return order, nil
}

func (c *Creator) commitTx(ctx context.Context, tx *sqlx.Tx, req CommitRequest, reservations []reservation) (*models.Order, error) {
	const op = "checkout.Commit"

	address, err := store.GetAddressForShare(ctx, tx, req.AddressID, req.UserID)
	if err != nil {
		if errors.Is(err, database.ErrAddressNotFound) {
			return nil, apperr.NotFound(op, "address %d not found", req.AddressID)
		}
		return nil, err
	}

	// Locks are taken in key order so concurrent checkouts cannot deadlock.
	for _, r := range reservations {
		if _, err := inventory.Reserve(ctx, tx, r.key, r.quantity); err != nil {
			return nil, err
		}
	}

	subtotal := decimal.Zero
	items := make([]models.OrderItem, 0, len(reservations))
	for _, r := range reservations {
		product, err := store.GetProduct(ctx, tx, r.key.ProductID)
		if err != nil {
			if errors.Is(err, database.ErrProductNotFound) {
				return nil, apperr.NotFound(op, "product %d not found", r.key.ProductID)
			}
			return nil, err
		}

		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(r.quantity)))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, models.OrderItem{
			ProductID: r.key.ProductID,
			ColorCode: r.key.ColorCode,
			Size:      r.key.Size,
			Quantity:  r.quantity,
			UnitPrice: product.Price,
			Subtotal:  discount.Round(lineTotal),
		})
	}

	discountAmount := decimal.Zero
	if req.CouponID != nil {
		coupon, err := store.LockCoupon(ctx, tx, *req.CouponID)
		if err != nil {
			if errors.Is(err, database.ErrCouponNotFound) {
				return nil, apperr.InvalidCoupon(op, "coupon %d does not exist", *req.CouponID)
			}
			return nil, err
		}
		if err := discount.ValidateRedemption(*coupon, c.now()); err != nil {
			return nil, err
		}
		discountAmount = discount.Apply(subtotal, *coupon)
	}

	quote := c.policy.Quote(subtotal, discountAmount)
	if req.Amount != nil && !discount.Round(*req.Amount).Equal(quote.Total) {
		return nil, apperr.Validation(op, "payment amount %s does not match order total %s",
			req.Amount.StringFixed(2), quote.Total.StringFixed(2))
	}

	for _, r := range reservations {
		err := store.DecrementVariantStock(ctx, tx, r.key.ProductID, r.key.ColorCode, r.key.Size, r.quantity)
		if err != nil {
			if errors.Is(err, database.ErrInsufficientStock) {
				return nil, &apperr.InsufficientStockError{
					ProductID: r.key.ProductID, ColorCode: r.key.ColorCode, Size: r.key.Size, Requested: r.quantity,
				}
			}
			return nil, err
		}
	}

	addressID := address.ID
	order := &models.Order{
		UserID:              req.UserID,
		ShippingAddressID:   &addressID,
		ShippingAddressText: formatAddress(address),
		Status:              models.OrderStatusPaid,
		Subtotal:            quote.Subtotal,
		TaxAmount:           quote.Tax,
		ShippingCost:        quote.Shipping,
		TotalAmount:         quote.Total,
		CouponID:            req.CouponID,
		PaymentReference:    req.PaymentReference,
	}
	if err := store.InsertOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	for i := range items {
		items[i].OrderID = order.ID
		if err := store.InsertOrderItem(ctx, tx, &items[i]); err != nil {
			return nil, err
		}
	}
	order.Items = items

	if req.CouponID != nil {
		if err := store.IncrementCouponUsage(ctx, tx, *req.CouponID); err != nil {
			if errors.Is(err, database.ErrCouponNotFound) {
				return nil, apperr.InvalidCoupon(op, "coupon %d reached its usage limit", *req.CouponID)
			}
			return nil, err
		}
	}

	return order, nil
}

// existingOrder returns the order already recorded for the payment
// reference, or nil when there is none.
func (c *Creator) existingOrder(ctx context.Context, op string, req CommitRequest) (*models.Order, error) {
	order, err := store.GetOrderByPaymentReference(ctx, c.db, req.PaymentReference)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			return nil, nil
		}
		log.Error().Err(err).Str("op", op).Str("payment_reference", req.PaymentReference).
			Msg("failed to look up payment reference")
		return nil, apperr.Internal(op, err)
	}

	if order.UserID != req.UserID {
		return nil, apperr.Conflict(op, "payment reference %s is already used", req.PaymentReference)
	}
	if !req.Since.IsZero() && order.CreatedAt.Before(req.Since) {
		return nil, apperr.Conflict(op, "payment reference %s already paid order %s from an earlier checkout",
			req.PaymentReference, order.OrderNumber)
	}

	items, err := store.GetOrderItems(ctx, c.db, order.ID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	order.Items = items

	log.Info().Int64("order_id", order.ID).Str("payment_reference", req.PaymentReference).
		Msg("payment already recorded, returning existing order")

	return order, nil
}

func validateCommit(op string, req CommitRequest) error {
	if req.UserID <= 0 {
		return apperr.Validation(op, "user id must be a positive integer")
	}
	if req.AddressID <= 0 {
		return apperr.Validation(op, "address id must be a positive integer")
	}
	if req.PaymentReference == "" {
		return apperr.Validation(op, "payment reference is required")
	}
	if req.CouponID != nil && *req.CouponID <= 0 {
		return apperr.Validation(op, "coupon id must be a positive integer")
	}
	if req.Amount != nil && req.Amount.IsNegative() {
		return apperr.Validation(op, "payment amount must not be negative")
	}
	if req.Cart == nil || req.Cart.IsEmpty() {
		return apperr.Validation(op, "cart is empty")
	}
	for _, l := range req.Cart.Lines() {
		if l.Quantity <= 0 {
			return apperr.Validation(op, "quantity for product %d must be positive", l.ProductID)
		}
	}
	return nil
}

// mergeLines sums quantities per variant and returns them in lock order.
func mergeLines(lines []cart.Line) []reservation {
	byKey := make(map[inventory.VariantKey]int, len(lines))
	for _, l := range lines {
		byKey[l.Key()] += l.Quantity
	}

	out := make([]reservation, 0, len(byKey))
	for key, qty := range byKey {
		out = append(out, reservation{key: key, quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.Less(out[j].key) })
	return out
}

func formatAddress(a *models.Address) string {
	return fmt.Sprintf("%s, %s, %s, %s", a.Address, a.City, a.Department, a.Country)
}
