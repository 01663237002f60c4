package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront-checkout/internal/database"
	"github.com/safar/storefront-checkout/internal/models"
)

const couponColumns = `id, code, discount_type, discount_value, usage_limit, usage_count, expires_at, active, created_at`

func CreateCoupon(ctx context.Context, db sqlx.QueryerContext, c models.Coupon) (*models.Coupon, error) {
	coupon := &models.Coupon{}

	query := `
		INSERT INTO coupons (code, discount_type, discount_value, usage_limit, usage_count, expires_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING ` + couponColumns

	err := sqlx.GetContext(ctx, db, coupon, query,
		c.Code, c.DiscountType, c.DiscountValue, c.UsageLimit, c.UsageCount, c.ExpiresAt, c.Active)
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	return coupon, nil
}

func GetCoupon(ctx context.Context, db sqlx.QueryerContext, id int64) (*models.Coupon, error) {
	coupon := &models.Coupon{}

	if err := sqlx.GetContext(ctx, db, coupon, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	return coupon, nil
}

// LockCoupon reads the coupon under a row lock so that the usage-limit check
// and the usage increment happen against the same count.
func LockCoupon(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Coupon, error) {
	coupon := &models.Coupon{}

	if err := sqlx.GetContext(ctx, tx, coupon, `SELECT `+couponColumns+` FROM coupons WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("lock coupon: %w", err)
	}

	return coupon, nil
}

func IncrementCouponUsage(ctx context.Context, tx *sqlx.Tx, id int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE coupons SET usage_count = usage_count + 1
		 WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`,
		id)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrCouponNotFound
	}

	return nil
}
