// Package inventory resolves per-variant stock. Stock read through Resolver
// is advisory; the checkout commit re-reads it under a row lock.
package inventory

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/database"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/safar/storefront-checkout/internal/store"
)

// VariantKey identifies one (color, size) combination of a product.
type VariantKey struct {
	ProductID int64  `json:"product_id"`
	ColorCode string `json:"color_code"`
	Size      string `json:"size"`
}

// Normalize trims the variant attributes and upper-cases hex colour codes so
// "#ffffff" and "#FFFFFF " name the same variant.
func (k VariantKey) Normalize() VariantKey {
	return VariantKey{
		ProductID: k.ProductID,
		ColorCode: strings.ToUpper(strings.TrimSpace(k.ColorCode)),
		Size:      strings.ToUpper(strings.TrimSpace(k.Size)),
	}
}

func (k VariantKey) Validate(op string) error {
	if k.ProductID <= 0 {
		return apperr.Validation(op, "product id must be a positive integer")
	}
	if k.ColorCode == "" {
		return apperr.Validation(op, "color code is required")
	}
	if k.Size == "" {
		return apperr.Validation(op, "size is required")
	}
	return nil
}

// Less orders keys so that locks are always taken in the same sequence.
func (k VariantKey) Less(other VariantKey) bool {
	if k.ProductID != other.ProductID {
		return k.ProductID < other.ProductID
	}
	if k.ColorCode != other.ColorCode {
		return k.ColorCode < other.ColorCode
	}
	return k.Size < other.Size
}

type Resolver struct {
	db *sqlx.DB
}

func NewResolver(db *sqlx.DB) *Resolver {
	return &Resolver{db: db}
}

// GetVariantStock returns the available quantity of exactly this variant.
// An unknown combination has zero stock.
func (r *Resolver) GetVariantStock(ctx context.Context, key VariantKey) (int, error) {
	const op = "inventory.GetVariantStock"

	key = key.Normalize()
	if err := key.Validate(op); err != nil {
		return 0, err
	}

	variant, err := store.GetVariant(ctx, r.db, key.ProductID, key.ColorCode, key.Size)
	if err != nil {
		if errors.Is(err, database.ErrVariantNotFound) {
			return 0, nil
		}
		log.Error().Err(err).Str("op", op).Int64("product_id", key.ProductID).
			Str("color_code", key.ColorCode).Str("size", key.Size).Msg("failed to read variant stock")
		return 0, apperr.Internal(op, err)
	}

	return variant.StockQuantity, nil
}

// Variants lists every variant of a product with its current stock.
func (r *Resolver) Variants(ctx context.Context, productID int64) ([]models.Variant, error) {
	const op = "inventory.Variants"

	if productID <= 0 {
		return nil, apperr.Validation(op, "product id must be a positive integer")
	}

	variants, err := store.ListVariants(ctx, r.db, productID)
	if err != nil {
		log.Error().Err(err).Str("op", op).Int64("product_id", productID).Msg("failed to list variants")
		return nil, apperr.Internal(op, err)
	}

	return variants, nil
}

// SetStock overwrites a variant's stock as reported by the warehouse. version
// must match the row the caller last read. A variant locked by an in-flight
// checkout is reported as a conflict instead of waiting for it.
func (r *Resolver) SetStock(ctx context.Context, key VariantKey, stock, version int) (*models.Variant, error) {
	const op = "inventory.SetStock"

	key = key.Normalize()
	if err := key.Validate(op); err != nil {
		return nil, err
	}
	if stock < 0 {
		return nil, apperr.Validation(op, "stock must not be negative")
	}

	var updated *models.Variant
	err := database.WithTransaction(ctx, r.db, database.DefaultTxOptions().Named(op), func(tx *sqlx.Tx) error {
		if _, err := store.LockVariantNoWait(ctx, tx, key.ProductID, key.ColorCode, key.Size); err != nil {
			return err
		}
		if err := store.UpdateVariantStockOptimistic(ctx, tx, key.ProductID, key.ColorCode, key.Size, stock, version); err != nil {
			return err
		}

		v, err := store.GetVariant(ctx, tx, key.ProductID, key.ColorCode, key.Size)
		if err != nil {
			return err
		}
		updated = v
		return nil
	})

	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, database.ErrVariantNotFound):
		return nil, apperr.NotFound(op, "variant %s/%s of product %d not found", key.ColorCode, key.Size, key.ProductID)
	case errors.Is(err, database.ErrLockTimeout):
		return nil, apperr.Conflict(op, "variant is being checked out, retry shortly")
	case errors.Is(err, database.ErrOptimisticLockFailed):
		return nil, apperr.Conflict(op, "variant stock changed since version %d", version)
	default:
		log.Error().Err(err).Str("op", op).Int64("product_id", key.ProductID).
			Str("color_code", key.ColorCode).Str("size", key.Size).Msg("failed to set variant stock")
		return nil, apperr.Internal(op, err)
	}
}

// Reserve locks the variant row inside tx and fails with an
// InsufficientStockError when fewer than quantity units remain. The lock is
// held until tx ends, so a following decrement cannot race another checkout.
func Reserve(ctx context.Context, tx *sqlx.Tx, key VariantKey, quantity int) (*models.Variant, error) {
	variant, err := store.LockVariant(ctx, tx, key.ProductID, key.ColorCode, key.Size)
	if err != nil {
		if errors.Is(err, database.ErrVariantNotFound) {
			return nil, &apperr.InsufficientStockError{
				ProductID: key.ProductID,
				ColorCode: key.ColorCode,
				Size:      key.Size,
				Requested: quantity,
				Available: 0,
			}
		}
		return nil, err
	}

	if variant.StockQuantity < quantity {
		return nil, &apperr.InsufficientStockError{
			ProductID: key.ProductID,
			ColorCode: key.ColorCode,
			Size:      key.Size,
			Requested: quantity,
			Available: variant.StockQuantity,
		}
	}

	return variant, nil
}
