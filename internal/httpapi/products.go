package httpapi

import (
	"net/http"

	"github.com/safar/storefront-checkout/internal/inventory"
)

type StockResponse struct {
	ProductID int64  `json:"product_id"`
	ColorCode string `json:"color_code"`
	Size      string `json:"size"`
	Stock     int    `json:"stock"`
}

type SetStockRequest struct {
	ColorCode string `json:"color_code" validate:"required"`
	Size      string `json:"size" validate:"required"`
	Stock     int    `json:"stock" validate:"gte=0"`
	Version   int    `json:"version" validate:"gte=0"`
}

// handleGetStock returns the stock of one variant when color and size are
// given, otherwise every variant of the product.
func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	productID, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	q := r.URL.Query()
	if q.Get("color") == "" && q.Get("size") == "" {
		variants, err := h.stock.Variants(r.Context(), productID)
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, variants)
		return
	}

	key := inventory.VariantKey{ProductID: productID, ColorCode: q.Get("color"), Size: q.Get("size")}.Normalize()
	stock, err := h.stock.GetVariantStock(r.Context(), key)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, StockResponse{
		ProductID: key.ProductID,
		ColorCode: key.ColorCode,
		Size:      key.Size,
		Stock:     stock,
	})
}

func (h *Handler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	productID, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	var req SetStockRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	key := inventory.VariantKey{ProductID: productID, ColorCode: req.ColorCode, Size: req.Size}
	variant, err := h.stock.SetStock(r.Context(), key, req.Stock, req.Version)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, variant)
}
