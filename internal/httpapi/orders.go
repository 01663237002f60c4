package httpapi

import (
	"net/http"
	"strconv"

	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/safar/storefront-checkout/internal/order"
)

type UpdateStatusRequest struct {
	Status  string `json:"status" validate:"required,oneof=pending paid processing shipped delivered cancelled"`
	Version int    `json:"version" validate:"gte=0"`
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondWithError(w, r, apperr.Validation("httpapi.listOrders", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	page, err := h.orders.List(r.Context(), sessionFrom(r.Context()).UserID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	o, err := h.orders.Get(r.Context(), id, sessionFrom(r.Context()).UserID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	invoice, err := h.orders.Invoice(r.Context(), id, sessionFrom(r.Context()).UserID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, invoice)
}

func (h *Handler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	var req UpdateStatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	s := sessionFrom(r.Context())
	if !s.Operator && req.Status != models.OrderStatusCancelled {
		respondWithError(w, r, apperr.Forbidden("order.UpdateStatus", "only operators may move an order to %s", req.Status))
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), id, order.Actor{UserID: s.UserID, Operator: s.Operator}, req.Status, req.Version)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}
