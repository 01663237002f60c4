// Package apperr defines the error kinds surfaced by the checkout core.
// Every public service operation returns either nil or an error whose
// kind can be recovered with KindOf; raw storage errors stay wrapped.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindConflict          Kind = "conflict"
	KindInsufficientStock Kind = "insufficient_stock"
	KindInvalidCoupon     Kind = "invalid_coupon"
	KindInternal          Kind = "internal_error"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(op, format string, args ...any) error {
	return &Error{Kind: KindForbidden, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Conflict(op, format string, args ...any) error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

func InvalidCoupon(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidCoupon, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a storage or transaction failure. The wrapped error is kept
// for logging but its text is never shown to clients.
func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// InsufficientStockError identifies the line item that could not be served.
type InsufficientStockError struct {
	ProductID int64
	ColorCode string
	Size      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (%s/%s): requested %d, available %d",
		e.ProductID, e.ColorCode, e.Size, e.Requested, e.Available)
}

// KindOf returns the kind of err, or KindInternal for errors that carry none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return KindInsufficientStock
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	return KindInternal
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns a message safe to show to the caller.
func PublicMessage(err error) string {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr.Error()
	}

	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}

	return "internal error"
}
