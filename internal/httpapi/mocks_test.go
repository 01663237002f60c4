package httpapi

import (
	"context"

	"github.com/google/uuid"
	"github.com/safar/storefront-checkout/internal/address"
	"github.com/safar/storefront-checkout/internal/cart"
	"github.com/safar/storefront-checkout/internal/checkout"
	"github.com/safar/storefront-checkout/internal/inventory"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/safar/storefront-checkout/internal/order"
	"github.com/stretchr/testify/mock"
)

type MockAddressService struct {
	mock.Mock
}

func (m *MockAddressService) List(ctx context.Context, userID int64) ([]models.Address, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Address), args.Error(1)
}

func (m *MockAddressService) Get(ctx context.Context, id, userID int64) (*models.Address, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Address), args.Error(1)
}

func (m *MockAddressService) GetDefault(ctx context.Context, userID int64) (*models.Address, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Address), args.Error(1)
}

func (m *MockAddressService) Create(ctx context.Context, userID int64, in address.NewAddress) (*models.Address, error) {
	args := m.Called(ctx, userID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Address), args.Error(1)
}

func (m *MockAddressService) Update(ctx context.Context, id, userID int64, patch *address.Patch) (*models.Address, error) {
	args := m.Called(ctx, id, userID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Address), args.Error(1)
}

func (m *MockAddressService) SetDefault(ctx context.Context, id, userID int64) (*models.Address, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Address), args.Error(1)
}

func (m *MockAddressService) Delete(ctx context.Context, id, userID int64) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) State(userID int64) (checkout.Flow, error) {
	args := m.Called(userID)
	return args.Get(0).(checkout.Flow), args.Error(1)
}

func (m *MockCheckoutService) SelectShipping(ctx context.Context, userID, addressID int64) (checkout.Flow, error) {
	args := m.Called(ctx, userID, addressID)
	return args.Get(0).(checkout.Flow), args.Error(1)
}

func (m *MockCheckoutService) Back(userID int64) (checkout.Flow, error) {
	args := m.Called(userID)
	return args.Get(0).(checkout.Flow), args.Error(1)
}

func (m *MockCheckoutService) HandlePayment(ctx context.Context, userID int64, result checkout.PaymentResult) (checkout.Flow, error) {
	args := m.Called(ctx, userID, result)
	return args.Get(0).(checkout.Flow), args.Error(1)
}

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) Get(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) Add(ctx context.Context, owner cart.Owner, req cart.AddRequest) (*cart.Cart, *cart.Warning, error) {
	args := m.Called(ctx, owner, req)
	c, _ := args.Get(0).(*cart.Cart)
	w, _ := args.Get(1).(*cart.Warning)
	return c, w, args.Error(2)
}

func (m *MockCartService) SetQuantity(ctx context.Context, owner cart.Owner, key inventory.VariantKey, quantity int) (*cart.Cart, *cart.Warning, error) {
	args := m.Called(ctx, owner, key, quantity)
	c, _ := args.Get(0).(*cart.Cart)
	w, _ := args.Get(1).(*cart.Warning)
	return c, w, args.Error(2)
}

func (m *MockCartService) Step(ctx context.Context, owner cart.Owner, key inventory.VariantKey, delta int) (*cart.Cart, error) {
	args := m.Called(ctx, owner, key, delta)
	c, _ := args.Get(0).(*cart.Cart)
	return c, args.Error(1)
}

func (m *MockCartService) Remove(ctx context.Context, owner cart.Owner, key inventory.VariantKey) (*cart.Cart, error) {
	args := m.Called(ctx, owner, key)
	c, _ := args.Get(0).(*cart.Cart)
	return c, args.Error(1)
}

func (m *MockCartService) Sync(ctx context.Context, userID int64, guestID uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, userID, guestID)
	c, _ := args.Get(0).(*cart.Cart)
	return c, args.Error(1)
}

type MockStockService struct {
	mock.Mock
}

func (m *MockStockService) GetVariantStock(ctx context.Context, key inventory.VariantKey) (int, error) {
	args := m.Called(ctx, key)
	return args.Int(0), args.Error(1)
}

func (m *MockStockService) Variants(ctx context.Context, productID int64) ([]models.Variant, error) {
	args := m.Called(ctx, productID)
	v, _ := args.Get(0).([]models.Variant)
	return v, args.Error(1)
}

func (m *MockStockService) SetStock(ctx context.Context, key inventory.VariantKey, stock, version int) (*models.Variant, error) {
	args := m.Called(ctx, key, stock, version)
	v, _ := args.Get(0).(*models.Variant)
	return v, args.Error(1)
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Get(ctx context.Context, id, userID int64) (*models.Order, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderService) List(ctx context.Context, userID int64, cursor string, limit int) (*order.Page, error) {
	args := m.Called(ctx, userID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Page), args.Error(1)
}

func (m *MockOrderService) Invoice(ctx context.Context, id, userID int64) (*order.Invoice, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Invoice), args.Error(1)
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, id int64, by order.Actor, status string, version int) (*models.Order, error) {
	args := m.Called(ctx, id, by, status, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}
