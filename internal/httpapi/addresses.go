package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/safar/storefront-checkout/internal/address"
	"github.com/safar/storefront-checkout/internal/apperr"
)

type CreateAddressRequest struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	Department string `json:"department" validate:"required"`
	Country    string `json:"country" validate:"required"`
	IsDefault  bool   `json:"is_default"`
}

func (h *Handler) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.addresses.List(r.Context(), sessionFrom(r.Context()).UserID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, addresses)
}

func (h *Handler) handleGetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	def, err := h.addresses.GetDefault(r.Context(), sessionFrom(r.Context()).UserID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if def == nil {
		respondWithJSON(w, http.StatusOK, nil)
		return
	}
	respondWithJSON(w, http.StatusOK, def)
}

func (h *Handler) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	a, err := h.addresses.Get(r.Context(), id, sessionFrom(r.Context()).UserID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, a)
}

func (h *Handler) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	var req CreateAddressRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	created, err := h.addresses.Create(r.Context(), sessionFrom(r.Context()).UserID, address.NewAddress{
		Address:    req.Address,
		City:       req.City,
		Department: req.Department,
		Country:    req.Country,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

// handleUpdateAddress accepts any subset of the address fields. Only keys
// present in the body are written.
func (h *Handler) handleUpdateAddress(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		log.Warn().Err(err).Msg("failed to decode address patch")
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload", Kind: apperr.KindValidation})
		return
	}

	patch, err := patchFromBody(body)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	updated, err := h.addresses.Update(r.Context(), id, sessionFrom(r.Context()).UserID, patch)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func patchFromBody(body map[string]json.RawMessage) (*address.Patch, error) {
	const op = "httpapi.patchAddress"

	patch := address.NewPatch()
	for key, raw := range body {
		field := address.Field(key)
		switch field {
		case address.FieldAddress, address.FieldCity, address.FieldDepartment, address.FieldCountry:
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, apperr.Validation(op, "%s must be a string", key)
			}
			patch.Set(field, v)
		case address.FieldIsDefault:
			var v bool
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, apperr.Validation(op, "is_default must be a boolean")
			}
			patch.SetDefault(v)
		default:
			return nil, apperr.Validation(op, "unknown field %q", key)
		}
	}
	return patch, nil
}

func (h *Handler) handleSetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	a, err := h.addresses.SetDefault(r.Context(), id, sessionFrom(r.Context()).UserID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, a)
}

func (h *Handler) handleDeleteAddress(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	if err := h.addresses.Delete(r.Context(), id, sessionFrom(r.Context()).UserID); err != nil {
		respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
