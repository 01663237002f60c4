// Package httpapi exposes the checkout core over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/safar/storefront-checkout/internal/address"
	"github.com/safar/storefront-checkout/internal/cart"
	"github.com/safar/storefront-checkout/internal/checkout"
	"github.com/safar/storefront-checkout/internal/inventory"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/safar/storefront-checkout/internal/order"
)

type AddressService interface {
	List(ctx context.Context, userID int64) ([]models.Address, error)
	Get(ctx context.Context, id, userID int64) (*models.Address, error)
	GetDefault(ctx context.Context, userID int64) (*models.Address, error)
	Create(ctx context.Context, userID int64, in address.NewAddress) (*models.Address, error)
	Update(ctx context.Context, id, userID int64, patch *address.Patch) (*models.Address, error)
	SetDefault(ctx context.Context, id, userID int64) (*models.Address, error)
	Delete(ctx context.Context, id, userID int64) error
}

type StockService interface {
	GetVariantStock(ctx context.Context, key inventory.VariantKey) (int, error)
	Variants(ctx context.Context, productID int64) ([]models.Variant, error)
	SetStock(ctx context.Context, key inventory.VariantKey, stock, version int) (*models.Variant, error)
}

type CartService interface {
	Get(ctx context.Context, owner cart.Owner) (*cart.Cart, error)
	Add(ctx context.Context, owner cart.Owner, req cart.AddRequest) (*cart.Cart, *cart.Warning, error)
	SetQuantity(ctx context.Context, owner cart.Owner, key inventory.VariantKey, quantity int) (*cart.Cart, *cart.Warning, error)
	Step(ctx context.Context, owner cart.Owner, key inventory.VariantKey, delta int) (*cart.Cart, error)
	Remove(ctx context.Context, owner cart.Owner, key inventory.VariantKey) (*cart.Cart, error)
	Sync(ctx context.Context, userID int64, guestID uuid.UUID) (*cart.Cart, error)
}

type CheckoutService interface {
	State(userID int64) (checkout.Flow, error)
	SelectShipping(ctx context.Context, userID, addressID int64) (checkout.Flow, error)
	Back(userID int64) (checkout.Flow, error)
	HandlePayment(ctx context.Context, userID int64, result checkout.PaymentResult) (checkout.Flow, error)
}

type OrderService interface {
	Get(ctx context.Context, id, userID int64) (*models.Order, error)
	List(ctx context.Context, userID int64, cursor string, limit int) (*order.Page, error)
	Invoice(ctx context.Context, id, userID int64) (*order.Invoice, error)
	UpdateStatus(ctx context.Context, id int64, by order.Actor, status string, version int) (*models.Order, error)
}

type Services struct {
	Addresses AddressService
	Stock     StockService
	Carts     CartService
	Checkout  CheckoutService
	Orders    OrderService
}

type Handler struct {
	addresses AddressService
	stock     StockService
	carts     CartService
	checkout  CheckoutService
	orders    OrderService
	validate  *validator.Validate
}

func NewHandler(s Services) *Handler {
	return &Handler{
		addresses: s.Addresses,
		stock:     s.Stock,
		carts:     s.Carts,
		checkout:  s.Checkout,
		orders:    s.Orders,
		validate:  validator.New(),
	}
}

func NewRouter(s Services) *chi.Mux {
	h := NewHandler(s)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(withSession)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/products/{id}/stock", h.handleGetStock)

	r.Route("/cart", func(r chi.Router) {
		r.Use(ensureGuest)
		r.Get("/", h.handleGetCart)
		r.Post("/items", h.handleAddCartItem)
		r.Patch("/items", h.handleUpdateCartItem)
		r.Post("/items/step", h.handleStepCartItem)
		r.Delete("/items", h.handleRemoveCartItem)
		r.With(requireUser).Post("/sync", h.handleSyncCart)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.With(requireOperator).Put("/products/{id}/stock", h.handleSetStock)

		r.Get("/addresses", h.handleListAddresses)
		r.Post("/addresses", h.handleCreateAddress)
		r.Get("/addresses/default", h.handleGetDefaultAddress)
		r.Get("/addresses/{id}", h.handleGetAddress)
		r.Put("/addresses/{id}", h.handleUpdateAddress)
		r.Post("/addresses/{id}/default", h.handleSetDefaultAddress)
		r.Delete("/addresses/{id}", h.handleDeleteAddress)

		r.Get("/checkout", h.handleGetCheckout)
		r.Post("/checkout/shipping", h.handleSelectShipping)
		r.Post("/checkout/back", h.handleCheckoutBack)
		r.Post("/checkout/confirm", h.handleConfirmCheckout)

		r.Get("/orders", h.handleListOrders)
		r.Get("/orders/{id}", h.handleGetOrder)
		r.Get("/orders/{id}/invoice", h.handleGetInvoice)
		r.Post("/orders/{id}/status", h.handleUpdateOrderStatus)
	})

	return r
}
