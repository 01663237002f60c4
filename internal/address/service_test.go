package address

import (
	"context"
	"testing"

	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchTracksOnlySetFields(t *testing.T) {
	p := NewPatch().Set(FieldCity, "  Medellín ").Set(FieldAddress, "Calle 10 #4-20")

	assert.Equal(t, 2, p.Len())

	_, ok := p.Text(FieldCountry)
	assert.False(t, ok)

	_, ok = p.Default()
	assert.False(t, ok)

	columns, values := p.columns()
	assert.Equal(t, []string{"address", "city"}, columns)
	assert.Equal(t, []any{"Calle 10 #4-20", "Medellín"}, values)

	p.SetDefault(false)
	isDefault, ok := p.Default()
	assert.True(t, ok)
	assert.False(t, isDefault)
	assert.Equal(t, 3, p.Len())
}

func TestNilPatchIsEmpty(t *testing.T) {
	var p *Patch
	assert.Equal(t, 0, p.Len())
}

// Validation runs before any storage access, so a service without a database
// is enough to exercise it.
func TestValidationFailsBeforeStorage(t *testing.T) {
	svc := NewService(nil, config.OwnershipNotFound)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"list with zero user", func() error { _, err := svc.List(ctx, 0); return err }},
		{"get with negative id", func() error { _, err := svc.Get(ctx, -1, 1); return err }},
		{"default with zero user", func() error { _, err := svc.GetDefault(ctx, 0); return err }},
		{"create with blank city", func() error {
			_, err := svc.Create(ctx, 1, NewAddress{Address: "Calle 1", City: "   ", Department: "Antioquia", Country: "CO"})
			return err
		}},
		{"create with missing country", func() error {
			_, err := svc.Create(ctx, 1, NewAddress{Address: "Calle 1", City: "Bogotá", Department: "Cundinamarca"})
			return err
		}},
		{"update with no fields", func() error { _, err := svc.Update(ctx, 1, 1, NewPatch()); return err }},
		{"update with blank value", func() error {
			_, err := svc.Update(ctx, 1, 1, NewPatch().Set(FieldCountry, " "))
			return err
		}},
		{"update with unknown field", func() error {
			_, err := svc.Update(ctx, 1, 1, NewPatch().Set(Field("zip"), "050021"))
			return err
		}},
		{"set default with zero id", func() error { _, err := svc.SetDefault(ctx, 0, 1); return err }},
		{"delete with zero user", func() error { return svc.Delete(ctx, 1, 0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}
