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
)

const addressColumns = `id, user_id, address, city, department, country, is_default, created_at, updated_at`

// AddressFields are the free-text columns of an address.
type AddressFields struct {
	Address    string
	City       string
	Department string
	Country    string
}

// LockUserAddresses serialises address mutations for userID until tx ends.
// It also covers the case where the user has no rows yet to lock.
func LockUserAddresses(ctx context.Context, tx *sqlx.Tx, userID int64) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
		return fmt.Errorf("lock user addresses: %w", err)
	}
	return nil
}

func ListAddresses(ctx context.Context, db sqlx.QueryerContext, userID int64) ([]models.Address, error) {
	addresses := []models.Address{}

	query := `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`

	if err := sqlx.SelectContext(ctx, db, &addresses, query, userID); err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}

	return addresses, nil
}

// GetAddress returns ErrAddressNotFound both when the row is missing and when
// it belongs to another user.
func GetAddress(ctx context.Context, db sqlx.QueryerContext, id, userID int64) (*models.Address, error) {
	address := &models.Address{}

	query := `SELECT ` + addressColumns + ` FROM addresses WHERE id = $1 AND user_id = $2`

	if err := sqlx.GetContext(ctx, db, address, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return address, nil
}

// GetAddressOwner returns the owning user of an address regardless of who
// is asking.
func GetAddressOwner(ctx context.Context, db sqlx.QueryerContext, id int64) (int64, error) {
	var userID int64

	if err := sqlx.GetContext(ctx, db, &userID, `SELECT user_id FROM addresses WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, database.ErrAddressNotFound
		}
		return 0, fmt.Errorf("get address owner: %w", err)
	}

	return userID, nil
}

// GetAddressForShare reads the owned address and holds a share lock on it so
// it cannot be deleted or edited before tx commits.
func GetAddressForShare(ctx context.Context, tx *sqlx.Tx, id, userID int64) (*models.Address, error) {
	address := &models.Address{}

	query := `SELECT ` + addressColumns + ` FROM addresses WHERE id = $1 AND user_id = $2 FOR SHARE`

	if err := sqlx.GetContext(ctx, tx, address, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address for share: %w", err)
	}

	return address, nil
}

// GetDefaultAddress returns nil, nil when the user has no default address.
func GetDefaultAddress(ctx context.Context, db sqlx.QueryerContext, userID int64) (*models.Address, error) {
	address := &models.Address{}

	query := `SELECT ` + addressColumns + ` FROM addresses WHERE user_id = $1 AND is_default`

	if err := sqlx.GetContext(ctx, db, address, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get default address: %w", err)
	}

	return address, nil
}

func CountAddresses(ctx context.Context, db sqlx.QueryerContext, userID int64) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, db, &count, `SELECT COUNT(*) FROM addresses WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("count addresses: %w", err)
	}
	return count, nil
}

func InsertAddress(ctx context.Context, tx *sqlx.Tx, userID int64, fields AddressFields) (int64, error) {
	var id int64

	err := tx.QueryRowxContext(ctx,
		`INSERT INTO addresses (user_id, address, city, department, country, is_default, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, NOW(), NOW())
		 RETURNING id`,
		userID, fields.Address, fields.City, fields.Department, fields.Country).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert address: %w", err)
	}

	return id, nil
}

// UpdateAddressColumns applies only the given column values. Column names come
// from a fixed allow-list in the caller, never from user input.
func UpdateAddressColumns(ctx context.Context, tx *sqlx.Tx, id, userID int64, columns []string, values []any) error {
	if len(columns) == 0 {
		return nil
	}

	sets := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(values)+2)
	for i, column := range columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, i+1))
		args = append(args, values[i])
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id, userID)

	query := fmt.Sprintf(`UPDATE addresses SET %s WHERE id = $%d AND user_id = $%d`,
		strings.Join(sets, ", "), len(columns)+1, len(columns)+2)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrAddressNotFound
	}

	return nil
}

// MakeDefaultAddress clears the default flag on every other address of the
// user and sets it on id. The clear runs first so the partial unique index
// never sees two defaults.
func MakeDefaultAddress(ctx context.Context, tx *sqlx.Tx, id, userID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE addresses SET is_default = FALSE, updated_at = NOW()
		 WHERE user_id = $1 AND is_default AND id <> $2`,
		userID, id)
	if err != nil {
		return fmt.Errorf("clear default addresses: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE addresses SET is_default = TRUE, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return fmt.Errorf("set default address: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrAddressNotFound
	}

	return nil
}

// AddressHasActiveOrders reports whether any order that has not reached a
// final status still ships to the address.
func AddressHasActiveOrders(ctx context.Context, db sqlx.QueryerContext, id int64) (bool, error) {
	var exists bool

	query := `
		SELECT EXISTS(
			SELECT 1 FROM orders
			WHERE shipping_address_id = $1
			  AND status NOT IN ($2, $3)
		)`

	err := sqlx.GetContext(ctx, db, &exists, query, id, models.OrderStatusDelivered, models.OrderStatusCancelled)
	if err != nil {
		return false, fmt.Errorf("check address orders: %w", err)
	}

	return exists, nil
}

func DeleteAddress(ctx context.Context, tx *sqlx.Tx, id, userID int64) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrAddressNotFound
	}

	return nil
}

// NewestAddressID returns 0 when the user has no addresses left.
func NewestAddressID(ctx context.Context, db sqlx.QueryerContext, userID int64) (int64, error) {
	var id int64

	query := `
		SELECT id FROM addresses
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	if err := sqlx.GetContext(ctx, db, &id, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("newest address: %w", err)
	}

	return id, nil
}
