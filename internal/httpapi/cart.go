package httpapi

import (
	"net/http"
	"strconv"

	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/cart"
	"github.com/safar/storefront-checkout/internal/discount"
	"github.com/safar/storefront-checkout/internal/inventory"
	"github.com/shopspring/decimal"
)

type CartItemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	ColorCode string `json:"color_code" validate:"required"`
	Size      string `json:"size" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type CartStepRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	ColorCode string `json:"color_code" validate:"required"`
	Size      string `json:"size" validate:"required"`
	Delta     int    `json:"delta" validate:"required"`
}

type WarningResponse struct {
	Message   string `json:"message"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type CartResponse struct {
	Lines    []cart.Line      `json:"lines"`
	Subtotal decimal.Decimal  `json:"subtotal"`
	Warning  *WarningResponse `json:"warning,omitempty"`
}

func cartResponse(c *cart.Cart, warning *cart.Warning) CartResponse {
	resp := CartResponse{Lines: c.Lines(), Subtotal: discount.Round(c.Subtotal())}
	if warning != nil {
		resp.Warning = &WarningResponse{
			Message:   warning.Message(),
			Requested: warning.Requested,
			Available: warning.Available,
		}
	}
	return resp
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), sessionFrom(r.Context()).Owner())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cartResponse(c, nil))
}

func (h *Handler) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req CartItemRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	c, warning, err := h.carts.Add(r.Context(), sessionFrom(r.Context()).Owner(), cart.AddRequest{
		ProductID: req.ProductID,
		ColorCode: req.ColorCode,
		Size:      req.Size,
		Quantity:  req.Quantity,
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cartResponse(c, warning))
}

func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req CartItemRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	key := inventory.VariantKey{ProductID: req.ProductID, ColorCode: req.ColorCode, Size: req.Size}
	c, warning, err := h.carts.SetQuantity(r.Context(), sessionFrom(r.Context()).Owner(), key, req.Quantity)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cartResponse(c, warning))
}

func (h *Handler) handleStepCartItem(w http.ResponseWriter, r *http.Request) {
	var req CartStepRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	key := inventory.VariantKey{ProductID: req.ProductID, ColorCode: req.ColorCode, Size: req.Size}
	c, err := h.carts.Step(r.Context(), sessionFrom(r.Context()).Owner(), key, req.Delta)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cartResponse(c, nil))
}

// handleRemoveCartItem takes the variant from the query string:
// ?product_id=7&color=%23000000&size=M.
func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, err := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if err != nil {
		respondWithError(w, r, apperr.Validation("httpapi.removeCartItem", "product_id must be a positive integer"))
		return
	}

	key := inventory.VariantKey{ProductID: productID, ColorCode: q.Get("color"), Size: q.Get("size")}
	c, err := h.carts.Remove(r.Context(), sessionFrom(r.Context()).Owner(), key)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cartResponse(c, nil))
}

// handleSyncCart is called right after login with the guest id the client
// used so far. The server cart wins.
func (h *Handler) handleSyncCart(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	c, err := h.carts.Sync(r.Context(), s.UserID, s.GuestID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cartResponse(c, nil))
}
