package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront-checkout/internal/database"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, sku, name, description, image_url, price, created_at, updated_at, version`

const variantColumns = `product_id, color_code, color_name, size, stock_quantity, updated_at, version`

func CreateProduct(ctx context.Context, db sqlx.QueryerContext, sku, name, description, imageURL string, price decimal.Decimal) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (sku, name, description, image_url, price, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	if err := sqlx.GetContext(ctx, db, product, query, sku, name, description, imageURL, price); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db sqlx.QueryerContext, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	if err := sqlx.GetContext(ctx, db, product, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// UpsertVariant creates the variant or overwrites its label and stock. Color
// code and size are stored trimmed and upper-cased, the form every lookup
// uses.
func UpsertVariant(ctx context.Context, db sqlx.QueryerContext, v models.Variant) (*models.Variant, error) {
	variant := &models.Variant{}
	v.ColorCode = strings.ToUpper(strings.TrimSpace(v.ColorCode))
	v.Size = strings.ToUpper(strings.TrimSpace(v.Size))

	query := `
		INSERT INTO product_variants (product_id, color_code, color_name, size, stock_quantity, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, NOW(), 1)
		ON CONFLICT (product_id, color_code, size) DO UPDATE
		SET color_name = EXCLUDED.color_name,
		    stock_quantity = EXCLUDED.stock_quantity,
		    updated_at = NOW(),
		    version = product_variants.version + 1
		RETURNING ` + variantColumns

	err := sqlx.GetContext(ctx, db, variant, query, v.ProductID, v.ColorCode, v.ColorName, v.Size, v.StockQuantity)
	if err != nil {
		return nil, fmt.Errorf("upsert variant: %w", err)
	}

	return variant, nil
}

func GetVariant(ctx context.Context, db sqlx.QueryerContext, productID int64, colorCode, size string) (*models.Variant, error) {
	variant := &models.Variant{}

	query := `
		SELECT ` + variantColumns + `
		FROM product_variants
		WHERE product_id = $1 AND color_code = $2 AND size = $3`

	if err := sqlx.GetContext(ctx, db, variant, query, productID, colorCode, size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}

	return variant, nil
}

func ListVariants(ctx context.Context, db sqlx.QueryerContext, productID int64) ([]models.Variant, error) {
	variants := []models.Variant{}

	query := `
		SELECT ` + variantColumns + `
		FROM product_variants
		WHERE product_id = $1
		ORDER BY color_code, size`

	if err := sqlx.SelectContext(ctx, db, &variants, query, productID); err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}

	return variants, nil
}

// LockVariant takes a row lock on the variant for the rest of tx. It does not
// check quantities; callers compare StockQuantity against their request.
func LockVariant(ctx context.Context, tx *sqlx.Tx, productID int64, colorCode, size string) (*models.Variant, error) {
	variant := &models.Variant{}

	query := `
		SELECT ` + variantColumns + `
		FROM product_variants
		WHERE product_id = $1 AND color_code = $2 AND size = $3
		FOR UPDATE`

	if err := sqlx.GetContext(ctx, tx, variant, query, productID, colorCode, size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("lock variant: %w", err)
	}

	return variant, nil
}

func LockVariantNoWait(ctx context.Context, tx *sqlx.Tx, productID int64, colorCode, size string) (*models.Variant, error) {
	variant := &models.Variant{}

	query := `
		SELECT ` + variantColumns + `
		FROM product_variants
		WHERE product_id = $1 AND color_code = $2 AND size = $3
		FOR UPDATE NOWAIT`

	if err := sqlx.GetContext(ctx, tx, variant, query, productID, colorCode, size); err != nil {
		if database.IsLockNotAvailable(err) {
			return nil, database.ErrLockTimeout
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("lock variant (nowait): %w", err)
	}

	return variant, nil
}

func UpdateVariantStockOptimistic(ctx context.Context, db sqlx.ExecerContext, productID int64, colorCode, size string, newStock, version int) error {
	result, err := db.ExecContext(ctx,
		`UPDATE product_variants
		 SET stock_quantity = $1, version = version + 1, updated_at = NOW()
		 WHERE product_id = $2 AND color_code = $3 AND size = $4 AND version = $5`,
		newStock, productID, colorCode, size, version)
	if err != nil {
		return fmt.Errorf("update variant stock: %w", err)
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

// DecrementVariantStock never drives stock below zero: the guarded UPDATE
// matches no row when the remaining stock is short.
func DecrementVariantStock(ctx context.Context, tx *sqlx.Tx, productID int64, colorCode, size string, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE product_variants
		 SET stock_quantity = stock_quantity - $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE product_id = $2 AND color_code = $3 AND size = $4
		   AND stock_quantity >= $1`,
		quantity, productID, colorCode, size)
	if err != nil {
		return fmt.Errorf("decrement variant stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

func IncrementVariantStock(ctx context.Context, tx *sqlx.Tx, productID int64, colorCode, size string, quantity int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE product_variants
		 SET stock_quantity = stock_quantity + $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE product_id = $2 AND color_code = $3 AND size = $4`,
		quantity, productID, colorCode, size)
	if err != nil {
		return fmt.Errorf("increment variant stock: %w", err)
	}

	return nil
}
