package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront-checkout/internal/database"
	"github.com/safar/storefront-checkout/internal/models"
)

const orderColumns = `id, user_id, order_number, shipping_address_id, shipping_address_text, status,
	subtotal, tax_amount, shipping_cost, total_amount, coupon_id, payment_reference,
	created_at, updated_at, version`

const orderItemColumns = `id, order_id, product_id, color_code, size, quantity, unit_price, subtotal, created_at`

func generateOrderNumber() string {
	return "ORD-" + uuid.Must(uuid.NewV7()).String()
}

// InsertOrder stores the order header and fills in the generated columns.
func InsertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	order.OrderNumber = generateOrderNumber()

	err := tx.QueryRowxContext(ctx,
		`INSERT INTO orders (user_id, order_number, shipping_address_id, shipping_address_text, status,
		                     subtotal, tax_amount, shipping_cost, total_amount, coupon_id, payment_reference,
		                     created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW(), 1)
		 RETURNING id, created_at, updated_at, version`,
		order.UserID, order.OrderNumber, order.ShippingAddressID, order.ShippingAddressText, order.Status,
		order.Subtotal, order.TaxAmount, order.ShippingCost, order.TotalAmount, order.CouponID, order.PaymentReference,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &order.Version)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	return nil
}

func InsertOrderItem(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO order_items (order_id, product_id, color_code, size, quantity, unit_price, subtotal, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING id, created_at`,
		item.OrderID, item.ProductID, item.ColorCode, item.Size, item.Quantity, item.UnitPrice, item.Subtotal,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}

	return nil
}

func GetOrder(ctx context.Context, db sqlx.QueryerContext, id int64) (*models.Order, error) {
	order := &models.Order{}

	if err := sqlx.GetContext(ctx, db, order, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := GetOrderItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func GetOrderItems(ctx context.Context, db sqlx.QueryerContext, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}

	query := `SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id = $1 ORDER BY id`

	if err := sqlx.SelectContext(ctx, db, &items, query, orderID); err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}

	return items, nil
}

// GetOrderByPaymentReference returns ErrOrderNotFound when no order has been
// recorded for the payment yet.
func GetOrderByPaymentReference(ctx context.Context, db sqlx.QueryerContext, reference string) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE payment_reference = $1`

	if err := sqlx.GetContext(ctx, db, order, query, reference); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by payment reference: %w", err)
	}

	return order, nil
}

func LockOrder(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}

	if err := sqlx.GetContext(ctx, tx, order, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return order, nil
}

func UpdateOrderStatus(ctx context.Context, tx *sqlx.Tx, id int64, status string, version int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND version = $3`,
		status, id, version)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOptimisticLockFailed
	}

	return nil
}

// ListOrdersCursor returns up to limit orders of the user older than the
// cursor position. One extra row is read to learn whether another page exists.
func ListOrdersCursor(ctx context.Context, db sqlx.QueryerContext, userID int64, cursor string, limit int) (*OrderPage, error) {
	position, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1`
	args := []any{userID}
	if position != nil {
		query += `
		  AND (created_at, id) < ($2, $3)`
		args = append(args, position.CreatedAt, position.ID)
	}
	query += fmt.Sprintf(`
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	orders := []models.Order{}
	if err := sqlx.SelectContext(ctx, db, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	page := &OrderPage{Orders: orders}
	if len(orders) > limit {
		page.Orders = orders[:limit]
		page.HasMore = true

		last := page.Orders[limit-1]
		page.NextCursor = OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}

	return page, nil
}
