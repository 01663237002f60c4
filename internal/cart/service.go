package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/database"
	"github.com/safar/storefront-checkout/internal/inventory"
	"github.com/safar/storefront-checkout/internal/store"
)

// Owner identifies whose cart a request works on. A positive UserID means an
// authenticated shopper; otherwise GuestID names a guest cart.
type Owner struct {
	UserID  int64
	GuestID uuid.UUID
}

func (o Owner) Authenticated() bool {
	return o.UserID > 0
}

type AddRequest struct {
	ProductID int64
	ColorCode string
	Size      string
	Quantity  int
}

// Service resolves catalog data for new lines and picks the repository that
// matches the owner.
type Service struct {
	db       *sqlx.DB
	resolver *inventory.Resolver
	guests   *GuestStore
}

func NewService(db *sqlx.DB, resolver *inventory.Resolver, guests *GuestStore) *Service {
	return &Service{db: db, resolver: resolver, guests: guests}
}

// Repository returns the cart storage for owner.
func (s *Service) Repository(owner Owner) (Repository, error) {
	if owner.Authenticated() {
		return NewRemoteRepository(s.db, owner.UserID), nil
	}
	if owner.GuestID == uuid.Nil {
		return nil, apperr.Validation("cart.Repository", "guest id is required")
	}
	return NewLocalRepository(s.guests, owner.GuestID), nil
}

func (s *Service) Get(ctx context.Context, owner Owner) (*Cart, error) {
	repo, err := s.Repository(owner)
	if err != nil {
		return nil, err
	}

	c, err := Open(ctx, repo)
	if err != nil {
		log.Error().Err(err).Str("op", "cart.Get").Int64("user_id", owner.UserID).Msg("failed to load cart")
		return nil, err
	}
	return c, nil
}

// Add captures the current price, display fields and variant stock, then
// merges the line into the owner's cart.
func (s *Service) Add(ctx context.Context, owner Owner, req AddRequest) (*Cart, *Warning, error) {
	const op = "cart.Add"

	key := inventory.VariantKey{ProductID: req.ProductID, ColorCode: req.ColorCode, Size: req.Size}.Normalize()
	if err := key.Validate(op); err != nil {
		return nil, nil, err
	}
	if req.Quantity <= 0 {
		return nil, nil, apperr.Validation(op, "quantity must be a positive integer")
	}

	c, err := s.Get(ctx, owner)
	if err != nil {
		return nil, nil, err
	}

	product, err := store.GetProduct(ctx, s.db, key.ProductID)
	if err != nil {
		if errors.Is(err, database.ErrProductNotFound) {
			return nil, nil, apperr.NotFound(op, "product %d not found", key.ProductID)
		}
		log.Error().Err(err).Str("op", op).Int64("product_id", key.ProductID).Msg("failed to read product")
		return nil, nil, apperr.Internal(op, err)
	}

	line := Line{
		ProductID: key.ProductID,
		ColorCode: key.ColorCode,
		Size:      key.Size,
		Quantity:  req.Quantity,
		UnitPrice: product.Price,
		Name:      product.Name,
		ImageURL:  product.ImageURL,
	}

	variant, err := store.GetVariant(ctx, s.db, key.ProductID, key.ColorCode, key.Size)
	switch {
	case err == nil:
		line.ColorName = variant.ColorName
		line.MaxStock = variant.StockQuantity
	case errors.Is(err, database.ErrVariantNotFound):
		line.MaxStock = 0
	default:
		log.Error().Err(err).Str("op", op).Int64("product_id", key.ProductID).
			Str("color_code", key.ColorCode).Str("size", key.Size).Msg("failed to read variant")
		return nil, nil, apperr.Internal(op, err)
	}

	warning, err := c.AddLine(ctx, line)
	if err != nil {
		return nil, nil, err
	}
	return c, warning, nil
}

// SetQuantity refreshes the line's stock ceiling from the resolver before
// checking the new quantity against it.
func (s *Service) SetQuantity(ctx context.Context, owner Owner, key inventory.VariantKey, quantity int) (*Cart, *Warning, error) {
	c, err := s.Get(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	if err := s.refreshCeiling(ctx, c, key); err != nil {
		return nil, nil, err
	}

	warning, err := c.UpdateQuantity(ctx, key, quantity)
	if err != nil {
		return nil, nil, err
	}
	return c, warning, nil
}

func (s *Service) Step(ctx context.Context, owner Owner, key inventory.VariantKey, delta int) (*Cart, error) {
	c, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := s.refreshCeiling(ctx, c, key); err != nil {
		return nil, err
	}

	if err := c.Step(ctx, key, delta); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Remove(ctx context.Context, owner Owner, key inventory.VariantKey) (*Cart, error) {
	c, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := c.RemoveLine(ctx, key); err != nil {
		return nil, err
	}
	return c, nil
}

// Sync runs after login. The guest cart is discarded, not merged, and the
// server cart is returned as the authoritative one.
func (s *Service) Sync(ctx context.Context, userID int64, guestID uuid.UUID) (*Cart, error) {
	if userID <= 0 {
		return nil, apperr.Validation("cart.Sync", "user id must be a positive integer")
	}
	if guestID != uuid.Nil {
		s.guests.Drop(guestID)
		log.Debug().Int64("user_id", userID).Str("guest_id", guestID.String()).Msg("guest cart discarded on login")
	}
	return s.Get(ctx, Owner{UserID: userID})
}

// refreshCeiling updates the in-memory stock ceiling of key's line with the
// current variant stock so edits are judged against fresh numbers.
func (s *Service) refreshCeiling(ctx context.Context, c *Cart, key inventory.VariantKey) error {
	key = key.Normalize()
	for i := range c.lines {
		if c.lines[i].Key() != key {
			continue
		}
		stock, err := s.resolver.GetVariantStock(ctx, key)
		if err != nil {
			return err
		}
		c.lines[i].MaxStock = stock
		return nil
	}
	return nil
}
