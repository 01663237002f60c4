package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/safar/storefront-checkout/internal/database"
	"github.com/safar/storefront-checkout/internal/inventory"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/safar/storefront-checkout/internal/store"
)

// ErrLineNotFound is returned by SetQuantity for a key that is not in the
// cart.
var ErrLineNotFound = errors.New("cart line not found")

// Repository persists the lines of exactly one cart. Which cart is fixed
// when the repository is built, so callers never branch on who the shopper
// is.
type Repository interface {
	Load(ctx context.Context) ([]Line, error)
	// Add inserts line, or adds its quantity to an existing line with the
	// same key and refreshes that line's stock ceiling.
	Add(ctx context.Context, line Line) error
	SetQuantity(ctx context.Context, key inventory.VariantKey, quantity int) error
	Remove(ctx context.Context, key inventory.VariantKey) error
	Clear(ctx context.Context) error
}

// DefaultGuestIdle is how long an untouched guest cart is kept.
const DefaultGuestIdle = 24 * time.Hour

// GuestStore holds guest carts in process memory, keyed by the guest id the
// client presents. Each guest cart has a single writer. Carts idle for longer
// than the configured period are evicted by Run.
type GuestStore struct {
	mu    sync.Mutex
	carts map[uuid.UUID]*guestCart
	now   func() time.Time
}

type guestCart struct {
	lines   []Line
	touched time.Time
}

func NewGuestStore() *GuestStore {
	return &GuestStore{carts: make(map[uuid.UUID]*guestCart), now: time.Now}
}

// Drop forgets a guest cart.
func (g *GuestStore) Drop(guestID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.carts, guestID)
}

// Len reports how many guest carts are held.
func (g *GuestStore) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.carts)
}

// Evict drops every cart not written or read for longer than idle and
// returns how many were dropped.
func (g *GuestStore) Evict(idle time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-idle)
	evicted := 0
	for id, c := range g.carts {
		if c.touched.Before(cutoff) {
			delete(g.carts, id)
			evicted++
		}
	}
	return evicted
}

// Run evicts idle carts until ctx is done.
func (g *GuestStore) Run(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		idle = DefaultGuestIdle
	}
	ticker := time.NewTicker(sweepInterval(idle))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Evict(idle); n > 0 {
				log.Debug().Int("evicted", n).Msg("evicted idle guest carts")
			}
		}
	}
}

func sweepInterval(idle time.Duration) time.Duration {
	interval := idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// cart returns the guest's cart, creating it when create is set, and marks
// it as used. The caller holds g.mu.
func (g *GuestStore) cart(guestID uuid.UUID, create bool) *guestCart {
	c, ok := g.carts[guestID]
	if !ok {
		if !create {
			return nil
		}
		c = &guestCart{}
		g.carts[guestID] = c
	}
	c.touched = g.now()
	return c
}

type LocalRepository struct {
	guests  *GuestStore
	guestID uuid.UUID
}

func NewLocalRepository(guests *GuestStore, guestID uuid.UUID) *LocalRepository {
	return &LocalRepository{guests: guests, guestID: guestID}
}

func (r *LocalRepository) Load(_ context.Context) ([]Line, error) {
	r.guests.mu.Lock()
	defer r.guests.mu.Unlock()

	c := r.guests.cart(r.guestID, false)
	if c == nil {
		return []Line{}, nil
	}
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out, nil
}

func (r *LocalRepository) Add(_ context.Context, line Line) error {
	r.guests.mu.Lock()
	defer r.guests.mu.Unlock()

	c := r.guests.cart(r.guestID, true)
	key := line.Key()
	for i := range c.lines {
		if c.lines[i].Key() == key {
			c.lines[i].Quantity += line.Quantity
			c.lines[i].MaxStock = line.MaxStock
			return nil
		}
	}
	c.lines = append(c.lines, line)
	return nil
}

func (r *LocalRepository) SetQuantity(_ context.Context, key inventory.VariantKey, quantity int) error {
	r.guests.mu.Lock()
	defer r.guests.mu.Unlock()

	c := r.guests.cart(r.guestID, false)
	if c == nil {
		return ErrLineNotFound
	}
	for i := range c.lines {
		if c.lines[i].Key() == key {
			c.lines[i].Quantity = quantity
			return nil
		}
	}
	return ErrLineNotFound
}

func (r *LocalRepository) Remove(_ context.Context, key inventory.VariantKey) error {
	r.guests.mu.Lock()
	defer r.guests.mu.Unlock()

	c := r.guests.cart(r.guestID, false)
	if c == nil {
		return nil
	}
	kept := c.lines[:0]
	for _, l := range c.lines {
		if l.Key() != key {
			kept = append(kept, l)
		}
	}
	c.lines = kept
	return nil
}

func (r *LocalRepository) Clear(_ context.Context) error {
	r.guests.Drop(r.guestID)
	return nil
}

// RemoteRepository keeps an authenticated user's cart in the cart_items
// table.
type RemoteRepository struct {
	db     *sqlx.DB
	userID int64
}

func NewRemoteRepository(db *sqlx.DB, userID int64) *RemoteRepository {
	return &RemoteRepository{db: db, userID: userID}
}

func (r *RemoteRepository) Load(ctx context.Context) ([]Line, error) {
	items, err := store.ListCartItems(ctx, r.db, r.userID)
	if err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{
			ProductID: item.ProductID,
			ColorCode: item.ColorCode,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			ColorName: item.ColorName,
			MaxStock:  item.MaxStock,
		})
	}
	return lines, nil
}

func (r *RemoteRepository) Add(ctx context.Context, line Line) error {
	key := line.Key()
	return store.AddCartItem(ctx, r.db, models.CartItem{
		UserID:    r.userID,
		ProductID: key.ProductID,
		ColorCode: key.ColorCode,
		Size:      key.Size,
		Quantity:  line.Quantity,
		UnitPrice: line.UnitPrice,
		Name:      line.Name,
		ImageURL:  line.ImageURL,
		ColorName: line.ColorName,
		MaxStock:  line.MaxStock,
	})
}

func (r *RemoteRepository) SetQuantity(ctx context.Context, key inventory.VariantKey, quantity int) error {
	err := store.SetCartItemQuantity(ctx, r.db, r.userID, key.ProductID, key.ColorCode, key.Size, quantity)
	if errors.Is(err, database.ErrCartItemNotFound) {
		return ErrLineNotFound
	}
	return err
}

func (r *RemoteRepository) Remove(ctx context.Context, key inventory.VariantKey) error {
	return store.DeleteCartItem(ctx, r.db, r.userID, key.ProductID, key.ColorCode, key.Size)
}

func (r *RemoteRepository) Clear(ctx context.Context) error {
	return store.ClearCart(ctx, r.db, r.userID)
}
