package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	storageErr := errors.New("connection reset by peer")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "validation", err: Validation("op", "city is required"), want: KindValidation},
		{name: "not_found", err: NotFound("op", "address %d not found", 4), want: KindNotFound},
		{name: "forbidden", err: Forbidden("op", "nope"), want: KindForbidden},
		{name: "conflict", err: Conflict("op", "in use"), want: KindConflict},
		{name: "coupon", err: InvalidCoupon("op", "expired"), want: KindInvalidCoupon},
		{name: "internal", err: Internal("op", storageErr), want: KindInternal},
		{name: "raw_error", err: storageErr, want: KindInternal},
		{name: "stock", err: &InsufficientStockError{ProductID: 7, Available: 1}, want: KindInsufficientStock},
		{name: "wrapped_stock", err: fmt.Errorf("commit: %w", &InsufficientStockError{ProductID: 7}), want: KindInsufficientStock},
		{name: "wrapped_app_error", err: fmt.Errorf("outer: %w", NotFound("op", "x")), want: KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("pq: relation does not exist")
	err := Internal("address.Create", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal error", PublicMessage(err))
	assert.Contains(t, err.Error(), "address.Create")
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "city is required", PublicMessage(Validation("op", "city is required")))
	assert.Equal(t, "internal error", PublicMessage(errors.New("boom")))
	assert.Contains(t, PublicMessage(&InsufficientStockError{ProductID: 7, ColorCode: "#000000", Size: "M", Requested: 2, Available: 1}),
		"available 1")
}
