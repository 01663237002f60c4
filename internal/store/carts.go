package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront-checkout/internal/database"
	"github.com/safar/storefront-checkout/internal/models"
)

const cartItemColumns = `user_id, product_id, color_code, size, quantity, unit_price, name, image_url, color_name, max_stock, added_at`

func ListCartItems(ctx context.Context, db sqlx.QueryerContext, userID int64) ([]models.CartItem, error) {
	items := []models.CartItem{}

	query := `
		SELECT ` + cartItemColumns + `
		FROM cart_items
		WHERE user_id = $1
		ORDER BY added_at, product_id, color_code, size`

	if err := sqlx.SelectContext(ctx, db, &items, query, userID); err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}

	return items, nil
}

// AddCartItem inserts the line or, when the same variant is already in the
// cart, adds item.Quantity to it and refreshes the stock ceiling.
func AddCartItem(ctx context.Context, db sqlx.ExecerContext, item models.CartItem) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO cart_items (user_id, product_id, color_code, size, quantity, unit_price, name, image_url, color_name, max_stock, added_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		 ON CONFLICT (user_id, product_id, color_code, size) DO UPDATE
		 SET quantity = cart_items.quantity + EXCLUDED.quantity,
		     max_stock = EXCLUDED.max_stock`,
		item.UserID, item.ProductID, item.ColorCode, item.Size, item.Quantity,
		item.UnitPrice, item.Name, item.ImageURL, item.ColorName, item.MaxStock)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}

	return nil
}

func SetCartItemQuantity(ctx context.Context, db sqlx.ExecerContext, userID, productID int64, colorCode, size string, quantity int) error {
	result, err := db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $1
		 WHERE user_id = $2 AND product_id = $3 AND color_code = $4 AND size = $5`,
		quantity, userID, productID, colorCode, size)
	if err != nil {
		return fmt.Errorf("set cart item quantity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrCartItemNotFound
	}

	return nil
}

func DeleteCartItem(ctx context.Context, db sqlx.ExecerContext, userID, productID int64, colorCode, size string) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM cart_items
		 WHERE user_id = $1 AND product_id = $2 AND color_code = $3 AND size = $4`,
		userID, productID, colorCode, size)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}

	return nil
}

func ClearCart(ctx context.Context, db sqlx.ExecerContext, userID int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
