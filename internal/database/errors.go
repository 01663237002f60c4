package database

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgerrcode.SerializationFailure:
			return ErrorClassSerialization
		case pgerrcode.DeadlockDetected:
			return ErrorClassDeadlock
		case pgerrcode.LockNotAvailable:
			return ErrorClassTransient
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func IsLockNotAvailable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.LockNotAvailable
}

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrVariantNotFound      = errors.New("variant not found")
	ErrAddressNotFound      = errors.New("address not found")
	ErrCouponNotFound       = errors.New("coupon not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrCartItemNotFound     = errors.New("cart item not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrOptimisticLockFailed = errors.New("optimistic lock failed")
	ErrLockTimeout          = errors.New("lock timeout")
)
