package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/safar/storefront-checkout/internal/address"
	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/cart"
	"github.com/safar/storefront-checkout/internal/checkout"
	"github.com/safar/storefront-checkout/internal/inventory"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/safar/storefront-checkout/internal/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

var (
	asUser     = map[string]string{HeaderUserID: "42"}
	asOperator = map[string]string{HeaderUserID: "7", HeaderRole: RoleOperator}
)

func TestAddressRoutesRequireUser(t *testing.T) {
	router := NewRouter(Services{Addresses: new(MockAddressService)})

	rr := doRequest(t, router, http.MethodGet, "/addresses", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/addresses", nil, map[string]string{HeaderUserID: "abc"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListAddressesFromQueryUser(t *testing.T) {
	svc := new(MockAddressService)
	router := NewRouter(Services{Addresses: svc})

	svc.On("List", mock.Anything, int64(7)).Return([]models.Address{{ID: 1, UserID: 7, IsDefault: true}}, nil).Once()

	rr := doRequest(t, router, http.MethodGet, "/addresses?userId=7", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var got []models.Address
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Len(t, got, 1)
	svc.AssertExpectations(t)
}

func TestCreateAddress(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := new(MockAddressService)
		router := NewRouter(Services{Addresses: svc})

		in := address.NewAddress{Address: "Calle 1", City: "Cali", Department: "Valle", Country: "Colombia", IsDefault: true}
		svc.On("Create", mock.Anything, int64(42), in).
			Return(&models.Address{ID: 5, UserID: 42, Address: "Calle 1", IsDefault: true}, nil).Once()

		rr := doRequest(t, router, http.MethodPost, "/addresses", CreateAddressRequest{
			Address: "Calle 1", City: "Cali", Department: "Valle", Country: "Colombia", IsDefault: true,
		}, asUser)

		assert.Equal(t, http.StatusCreated, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("missing field", func(t *testing.T) {
		svc := new(MockAddressService)
		router := NewRouter(Services{Addresses: svc})

		rr := doRequest(t, router, http.MethodPost, "/addresses",
			`{"address":"Calle 1","department":"Valle","country":"Colombia"}`, asUser)

		require.Equal(t, http.StatusBadRequest, rr.Code)
		resp := decodeError(t, rr)
		assert.Equal(t, apperr.KindValidation, resp.Kind)
		assert.Contains(t, resp.Details, "City")
		svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown field", func(t *testing.T) {
		router := NewRouter(Services{Addresses: new(MockAddressService)})

		rr := doRequest(t, router, http.MethodPost, "/addresses",
			`{"address":"a","city":"b","department":"c","country":"d","zip":"1"}`, asUser)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestUpdateAddressBuildsFieldMask(t *testing.T) {
	svc := new(MockAddressService)
	router := NewRouter(Services{Addresses: svc})

	onlyCity := mock.MatchedBy(func(p *address.Patch) bool {
		city, ok := p.Text(address.FieldCity)
		_, hasCountry := p.Text(address.FieldCountry)
		_, hasDefault := p.Default()
		return ok && city == "Bogotá" && !hasCountry && !hasDefault && p.Len() == 1
	})
	svc.On("Update", mock.Anything, int64(3), int64(42), onlyCity).
		Return(&models.Address{ID: 3, UserID: 42, City: "Bogotá"}, nil).Once()

	rr := doRequest(t, router, http.MethodPut, "/addresses/3", `{"city":"Bogotá"}`, asUser)
	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)

	rr = doRequest(t, router, http.MethodPut, "/addresses/3", `{"city":7}`, asUser)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, router, http.MethodPut, "/addresses/3", `{"postcode":"050021"}`, asUser)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, router, http.MethodPut, "/addresses/zero", `{"city":"Cali"}`, asUser)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAddressErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind apperr.Kind
	}{
		{"not owned", apperr.NotFound("address.Get", "address 9 not found"), http.StatusNotFound, apperr.KindNotFound},
		{"forbidden policy", apperr.Forbidden("address.Get", "address 9 is not yours"), http.StatusForbidden, apperr.KindForbidden},
		{"in use", apperr.Conflict("address.Delete", "in use"), http.StatusConflict, apperr.KindConflict},
		{"storage", apperr.Internal("address.Delete", assert.AnError), http.StatusInternalServerError, apperr.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAddressService)
			router := NewRouter(Services{Addresses: svc})
			svc.On("Delete", mock.Anything, int64(9), int64(42)).Return(tt.err).Once()

			rr := doRequest(t, router, http.MethodDelete, "/addresses/9", nil, asUser)

			assert.Equal(t, tt.code, rr.Code)
			resp := decodeError(t, rr)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotContains(t, resp.Error, assert.AnError.Error())
		})
	}
}

func TestDeleteAddressNoContent(t *testing.T) {
	svc := new(MockAddressService)
	router := NewRouter(Services{Addresses: svc})
	svc.On("Delete", mock.Anything, int64(9), int64(42)).Return(nil).Once()

	rr := doRequest(t, router, http.MethodDelete, "/addresses/9", nil, asUser)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestConfirmCheckout(t *testing.T) {
	couponID := int64(3)

	t.Run("success", func(t *testing.T) {
		svc := new(MockCheckoutService)
		router := NewRouter(Services{Checkout: svc})

		want := checkout.PaymentResult{Reference: "pay-1", Succeeded: true, CouponID: &couponID, AddressID: 10}
		svc.On("HandlePayment", mock.Anything, int64(42), want).Return(checkout.Flow{
			UserID: 42, Step: checkout.StepConfirmation, AddressID: 10,
			Receipt: &checkout.Receipt{OrderID: 77, OrderNumber: "ORD-1", Total: decimal.RequireFromString("109.00")},
		}, nil).Once()

		rr := doRequest(t, router, http.MethodPost, "/checkout/confirm",
			`{"addressId":10,"paymentReference":"pay-1","couponId":3}`, asUser)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp ConfirmResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, int64(77), resp.OrderID)
		assert.True(t, resp.Total.Equal(decimal.RequireFromString("109")))
		assert.Equal(t, checkout.StepConfirmation, resp.Step)
		svc.AssertExpectations(t)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		svc := new(MockCheckoutService)
		router := NewRouter(Services{Checkout: svc})

		svc.On("HandlePayment", mock.Anything, int64(42), mock.Anything).Return(
			checkout.Flow{UserID: 42, Step: checkout.StepPayment},
			&apperr.InsufficientStockError{ProductID: 7, ColorCode: "#000000", Size: "M", Requested: 2, Available: 1},
		).Once()

		rr := doRequest(t, router, http.MethodPost, "/checkout/confirm", `{"paymentReference":"pay-2"}`, asUser)

		require.Equal(t, http.StatusConflict, rr.Code)
		resp := decodeError(t, rr)
		assert.Equal(t, apperr.KindInsufficientStock, resp.Kind)
		assert.Equal(t, int64(7), resp.ProductID)
		require.NotNil(t, resp.Available)
		assert.Equal(t, 1, *resp.Available)
	})

	t.Run("invalid coupon", func(t *testing.T) {
		svc := new(MockCheckoutService)
		router := NewRouter(Services{Checkout: svc})

		svc.On("HandlePayment", mock.Anything, int64(42), mock.Anything).
			Return(checkout.Flow{Step: checkout.StepPayment}, apperr.InvalidCoupon("checkout", "coupon OLD expired")).Once()

		rr := doRequest(t, router, http.MethodPost, "/checkout/confirm", `{"paymentReference":"pay-3","couponId":3}`, asUser)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("declined payment", func(t *testing.T) {
		svc := new(MockCheckoutService)
		router := NewRouter(Services{Checkout: svc})

		declined := mock.MatchedBy(func(p checkout.PaymentResult) bool { return !p.Succeeded && p.Reference == "pay-4" })
		svc.On("HandlePayment", mock.Anything, int64(42), declined).
			Return(checkout.Flow{Step: checkout.StepPayment}, apperr.Validation("checkout", "payment pay-4 was not approved")).Once()

		rr := doRequest(t, router, http.MethodPost, "/checkout/confirm", `{"paymentReference":"pay-4","status":"failed"}`, asUser)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("missing reference", func(t *testing.T) {
		svc := new(MockCheckoutService)
		router := NewRouter(Services{Checkout: svc})

		rr := doRequest(t, router, http.MethodPost, "/checkout/confirm", `{"addressId":10}`, asUser)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "HandlePayment", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSelectShippingWithoutAddress(t *testing.T) {
	svc := new(MockCheckoutService)
	router := NewRouter(Services{Checkout: svc})

	rr := doRequest(t, router, http.MethodPost, "/checkout/shipping", `{}`, asUser)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "SelectShipping", mock.Anything, mock.Anything, mock.Anything)
}

func TestGuestCartGetsGuestID(t *testing.T) {
	svc := new(MockCartService)
	router := NewRouter(Services{Carts: svc})

	guestCart, err := cart.Open(context.Background(), cart.NewLocalRepository(cart.NewGuestStore(), uuid.New()))
	require.NoError(t, err)

	svc.On("Get", mock.Anything, mock.MatchedBy(func(o cart.Owner) bool {
		return !o.Authenticated() && o.GuestID != uuid.Nil
	})).Return(guestCart, nil).Once()

	rr := doRequest(t, router, http.MethodGet, "/cart", nil, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	_, err = uuid.Parse(rr.Header().Get(HeaderGuestID))
	assert.NoError(t, err)
	svc.AssertExpectations(t)
}

func TestSyncCartRequiresUser(t *testing.T) {
	svc := new(MockCartService)
	router := NewRouter(Services{Carts: svc})

	rr := doRequest(t, router, http.MethodPost, "/cart/sync", nil, map[string]string{HeaderGuestID: uuid.NewString()})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAddCartItemWarning(t *testing.T) {
	svc := new(MockCartService)
	router := NewRouter(Services{Carts: svc})

	guestID := uuid.New()
	guestCart, err := cart.Open(context.Background(), cart.NewLocalRepository(cart.NewGuestStore(), guestID))
	require.NoError(t, err)

	warning := &cart.Warning{Requested: 6, Available: 5}
	svc.On("Add", mock.Anything, cart.Owner{GuestID: guestID}, cart.AddRequest{ProductID: 7, ColorCode: "#000000", Size: "M", Quantity: 6}).
		Return(guestCart, warning, nil).Once()

	rr := doRequest(t, router, http.MethodPost, "/cart/items",
		`{"product_id":7,"color_code":"#000000","size":"M","quantity":6}`, map[string]string{HeaderGuestID: guestID.String()})

	require.Equal(t, http.StatusOK, rr.Code)
	var resp CartResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Warning)
	assert.Equal(t, 5, resp.Warning.Available)
	svc.AssertExpectations(t)
}

func TestGetVariantStockNormalizesKey(t *testing.T) {
	svc := new(MockStockService)
	router := NewRouter(Services{Stock: svc})

	key := inventory.VariantKey{ProductID: 7, ColorCode: "#FF00AA", Size: "M"}
	svc.On("GetVariantStock", mock.Anything, key).Return(3, nil).Once()

	rr := doRequest(t, router, http.MethodGet, "/products/7/stock?color=%23ff00aa&size=m", nil, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp StockResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Stock)
	assert.Equal(t, "#FF00AA", resp.ColorCode)
	svc.AssertExpectations(t)
}

func TestSetStockConflict(t *testing.T) {
	svc := new(MockStockService)
	router := NewRouter(Services{Stock: svc})

	key := inventory.VariantKey{ProductID: 7, ColorCode: "#000000", Size: "M"}
	svc.On("SetStock", mock.Anything, key, 12, 4).
		Return(nil, apperr.Conflict("inventory.SetStock", "variant stock changed since version 4")).Once()

	rr := doRequest(t, router, http.MethodPut, "/products/7/stock",
		`{"color_code":"#000000","size":"M","stock":12,"version":4}`, asOperator)

	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doRequest(t, router, http.MethodPut, "/products/7/stock",
		`{"color_code":"#000000","size":"M","stock":-1,"version":4}`, asOperator)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertExpectations(t)
}

func TestSetStockRequiresOperator(t *testing.T) {
	svc := new(MockStockService)
	router := NewRouter(Services{Stock: svc})
	body := `{"color_code":"#000000","size":"M","stock":12,"version":4}`

	rr := doRequest(t, router, http.MethodPut, "/products/7/stock", body, asUser)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, apperr.KindForbidden, decodeError(t, rr).Kind)

	// The role header counts only for a known user.
	rr = doRequest(t, router, http.MethodPut, "/products/7/stock", body, map[string]string{HeaderRole: RoleOperator})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	svc.AssertNotCalled(t, "SetStock", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateOrderStatusRoles(t *testing.T) {
	t.Run("shopper cannot ship", func(t *testing.T) {
		svc := new(MockOrderService)
		router := NewRouter(Services{Orders: svc})

		rr := doRequest(t, router, http.MethodPost, "/orders/9/status", `{"status":"shipped","version":1}`, asUser)

		require.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, apperr.KindForbidden, decodeError(t, rr).Kind)
		svc.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("shopper cancels own order", func(t *testing.T) {
		svc := new(MockOrderService)
		router := NewRouter(Services{Orders: svc})
		svc.On("UpdateStatus", mock.Anything, int64(9), order.Actor{UserID: 42}, models.OrderStatusCancelled, 1).
			Return(&models.Order{ID: 9, UserID: 42, Status: models.OrderStatusCancelled}, nil).Once()

		rr := doRequest(t, router, http.MethodPost, "/orders/9/status", `{"status":"cancelled","version":1}`, asUser)

		assert.Equal(t, http.StatusOK, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("shopper cancelling another user's order", func(t *testing.T) {
		svc := new(MockOrderService)
		router := NewRouter(Services{Orders: svc})
		svc.On("UpdateStatus", mock.Anything, int64(9), order.Actor{UserID: 42}, models.OrderStatusCancelled, 0).
			Return(nil, apperr.NotFound("order.UpdateStatus", "order 9 not found")).Once()

		rr := doRequest(t, router, http.MethodPost, "/orders/9/status", `{"status":"cancelled"}`, asUser)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("operator ships", func(t *testing.T) {
		svc := new(MockOrderService)
		router := NewRouter(Services{Orders: svc})
		svc.On("UpdateStatus", mock.Anything, int64(9), order.Actor{UserID: 7, Operator: true}, models.OrderStatusShipped, 2).
			Return(&models.Order{ID: 9, UserID: 42, Status: models.OrderStatusShipped}, nil).Once()

		rr := doRequest(t, router, http.MethodPost, "/orders/9/status", `{"status":"shipped","version":2}`, asOperator)

		assert.Equal(t, http.StatusOK, rr.Code)
		svc.AssertExpectations(t)
	})
}

func TestMapErrorToStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, mapErrorToStatusCode(apperr.Validation("op", "bad")))
	assert.Equal(t, http.StatusForbidden, mapErrorToStatusCode(apperr.Forbidden("op", "no")))
	assert.Equal(t, http.StatusConflict, mapErrorToStatusCode(&apperr.InsufficientStockError{}))
	assert.Equal(t, http.StatusUnprocessableEntity, mapErrorToStatusCode(apperr.InvalidCoupon("op", "old")))
	assert.Equal(t, http.StatusInternalServerError, mapErrorToStatusCode(assert.AnError))
}
