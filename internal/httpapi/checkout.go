package httpapi

import (
	"net/http"

	"github.com/safar/storefront-checkout/internal/checkout"
	"github.com/shopspring/decimal"
)

type SelectShippingRequest struct {
	AddressID int64 `json:"addressId" validate:"required,gt=0"`
}

// ConfirmRequest is the payment callback. Status defaults to succeeded.
type ConfirmRequest struct {
	AddressID        int64            `json:"addressId" validate:"omitempty,gt=0"`
	PaymentReference string           `json:"paymentReference" validate:"required"`
	CouponID         *int64           `json:"couponId,omitempty" validate:"omitempty,gt=0"`
	Status           string           `json:"status,omitempty" validate:"omitempty,oneof=succeeded failed"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
}

type ConfirmResponse struct {
	OrderID     int64           `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	Total       decimal.Decimal `json:"total"`
	Step        checkout.Step   `json:"step"`
}

func (h *Handler) handleGetCheckout(w http.ResponseWriter, r *http.Request) {
	flow, err := h.checkout.State(sessionFrom(r.Context()).UserID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, flow)
}

func (h *Handler) handleSelectShipping(w http.ResponseWriter, r *http.Request) {
	var req SelectShippingRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	flow, err := h.checkout.SelectShipping(r.Context(), sessionFrom(r.Context()).UserID, req.AddressID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, flow)
}

func (h *Handler) handleCheckoutBack(w http.ResponseWriter, r *http.Request) {
	flow, err := h.checkout.Back(sessionFrom(r.Context()).UserID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, flow)
}

func (h *Handler) handleConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	flow, err := h.checkout.HandlePayment(r.Context(), sessionFrom(r.Context()).UserID, checkout.PaymentResult{
		Reference: req.PaymentReference,
		Succeeded: req.Status != "failed",
		Amount:    req.Amount,
		CouponID:  req.CouponID,
		AddressID: req.AddressID,
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	resp := ConfirmResponse{Step: flow.Step}
	if flow.Receipt != nil {
		resp.OrderID = flow.Receipt.OrderID
		resp.OrderNumber = flow.Receipt.OrderNumber
		resp.Total = flow.Receipt.Total
	}
	respondWithJSON(w, http.StatusOK, resp)
}
