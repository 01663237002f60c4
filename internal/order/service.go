// Package order serves order history, invoices and status changes.
package order

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/database"
	"github.com/safar/storefront-checkout/internal/discount"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/safar/storefront-checkout/internal/store"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Page struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

// Actor is who asks for a status change. Operators may move any order
// along the lifecycle; a shopper may only cancel their own.
type Actor struct {
	UserID   int64
	Operator bool
}

// Invoice is the read-only breakdown of a stored order. The discount is not
// stored; it is recovered from the totals and the coupon.
type Invoice struct {
	Order    *models.Order   `json:"order"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
	Coupon   string          `json:"coupon,omitempty"`
}

type Service struct {
	db *sqlx.DB
}

func NewService(db *sqlx.DB) *Service {
	return &Service{db: db}
}

// Get returns the order with its items. Orders of other users are reported
// as not found.
func (s *Service) Get(ctx context.Context, id, userID int64) (*models.Order, error) {
	const op = "order.Get"

	if err := validateIDs(op, id, userID); err != nil {
		return nil, err
	}

	order, err := store.GetOrder(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			return nil, apperr.NotFound(op, "order %d not found", id)
		}
		log.Error().Err(err).Str("op", op).Int64("order_id", id).Msg("failed to read order")
		return nil, apperr.Internal(op, err)
	}
	if order.UserID != userID {
		return nil, apperr.NotFound(op, "order %d not found", id)
	}

	return order, nil
}

// List pages through the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID int64, cursor string, limit int) (*Page, error) {
	const op = "order.List"

	if userID <= 0 {
		return nil, apperr.Validation(op, "user id must be a positive integer")
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	page, err := store.ListOrdersCursor(ctx, s.db, userID, cursor, limit)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			return nil, apperr.Validation(op, "invalid cursor")
		}
		log.Error().Err(err).Str("op", op).Int64("user_id", userID).Msg("failed to list orders")
		return nil, apperr.Internal(op, err)
	}

	return &Page{Orders: page.Orders, NextCursor: page.NextCursor, HasMore: page.HasMore}, nil
}

func (s *Service) Invoice(ctx context.Context, id, userID int64) (*Invoice, error) {
	const op = "order.Invoice"

	order, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	itemsSubtotal := decimal.Zero
	for _, item := range order.Items {
		itemsSubtotal = itemsSubtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	invoice := &Invoice{
		Order:    order,
		Subtotal: discount.Round(itemsSubtotal),
		Discount: decimal.Zero,
		Tax:      order.TaxAmount,
		Shipping: order.ShippingCost,
		Total:    order.TotalAmount,
	}

	if order.CouponID == nil {
		return invoice, nil
	}

	coupon, err := store.GetCoupon(ctx, s.db, *order.CouponID)
	if err != nil {
		log.Error().Err(err).Str("op", op).Int64("order_id", id).Int64("coupon_id", *order.CouponID).
			Msg("failed to read invoice coupon")
		return nil, apperr.Internal(op, err)
	}

	postDiscount := order.TotalAmount.Sub(order.TaxAmount).Sub(order.ShippingCost)
	amount, err := discount.InferFromTotal(itemsSubtotal, postDiscount, *coupon)
	if err != nil {
		log.Error().Err(err).Str("op", op).Int64("order_id", id).Msg("failed to recover discount")
		return nil, apperr.Internal(op, err)
	}

	invoice.Discount = discount.Round(amount)
	invoice.Coupon = coupon.Code
	return invoice, nil
}

// UpdateStatus moves the order to status if the transition is allowed.
// Cancelling returns the ordered quantities to stock in the same
// transaction. version must match the stored version when non-zero.
func (s *Service) UpdateStatus(ctx context.Context, id int64, by Actor, status string, version int) (*models.Order, error) {
	const op = "order.UpdateStatus"

	if err := validateIDs(op, id, by.UserID); err != nil {
		return nil, err
	}
	if !isValidStatus(status) {
		return nil, apperr.Validation(op, "unknown status %q", status)
	}
	if !by.Operator && status != models.OrderStatusCancelled {
		return nil, apperr.Forbidden(op, "only operators may move an order to %s", status)
	}

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions().Named(op), func(tx *sqlx.Tx) error {
		current, err := store.LockOrder(ctx, tx, id)
		if err != nil {
			if errors.Is(err, database.ErrOrderNotFound) {
				return apperr.NotFound(op, "order %d not found", id)
			}
			return err
		}
		if !by.Operator && current.UserID != by.UserID {
			return apperr.NotFound(op, "order %d not found", id)
		}
		if version > 0 && current.Version != version {
			return apperr.Conflict(op, "order %d was modified, reload and retry", id)
		}
		if !CanTransition(current.Status, status) {
			return apperr.Conflict(op, "order %d cannot move from %s to %s", id, current.Status, status)
		}

		if err := store.UpdateOrderStatus(ctx, tx, id, status, current.Version); err != nil {
			if errors.Is(err, database.ErrOptimisticLockFailed) {
				return apperr.Conflict(op, "order %d was modified, reload and retry", id)
			}
			return err
		}

		if status != models.OrderStatusCancelled {
			return nil
		}

		items, err := store.GetOrderItems(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := store.IncrementVariantStock(ctx, tx, item.ProductID, item.ColorCode, item.Size, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		log.Error().Err(err).Str("op", op).Int64("order_id", id).Str("status", status).Msg("failed to update order status")
		return nil, apperr.Internal(op, err)
	}

	log.Info().Int64("order_id", id).Str("status", status).Msg("order status updated")

	return s.Get(ctx, id, by.UserID)
}

func validateIDs(op string, id, userID int64) error {
	if userID <= 0 {
		return apperr.Validation(op, "user id must be a positive integer")
	}
	if id <= 0 {
		return apperr.Validation(op, "order id must be a positive integer")
	}
	return nil
}
