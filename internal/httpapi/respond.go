package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/safar/storefront-checkout/internal/apperr"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Kind      apperr.Kind       `json:"kind"`
	ProductID int64             `json:"product_id,omitempty"`
	ColorCode string            `json:"color_code,omitempty"`
	Size      string            `json:"size,omitempty"`
	Available *int              `json:"available,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error","kind":"internal_error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

// respondWithError writes err with its machine-readable kind. Internal
// errors are logged here and never expose their cause.
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	payload := errorResponse{Error: apperr.PublicMessage(err), Kind: kind}

	var stockErr *apperr.InsufficientStockError
	if errors.As(err, &stockErr) {
		available := stockErr.Available
		payload.ProductID = stockErr.ProductID
		payload.ColorCode = stockErr.ColorCode
		payload.Size = stockErr.Size
		payload.Available = &available
	}

	if kind == apperr.KindInternal {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}

	respondWithJSON(w, mapErrorToStatusCode(err), payload)
}

func respondWithValidation(w http.ResponseWriter, err error) {
	payload := errorResponse{Error: "validation failed", Kind: apperr.KindValidation}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		payload.Details = formatValidationErrors(validationErrors)
	} else {
		payload.Error = err.Error()
	}

	respondWithJSON(w, http.StatusBadRequest, payload)
}

func mapErrorToStatusCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict, apperr.KindInsufficientStock:
		return http.StatusConflict
	case apperr.KindInvalidCoupon:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			details[fe.Field()] = "is required"
		case "gt", "gte", "min":
			details[fe.Field()] = "must be at least " + fe.Param()
		case "oneof":
			details[fe.Field()] = "must be one of: " + fe.Param()
		default:
			details[fe.Field()] = "failed on " + fe.Tag()
		}
	}
	return details
}

// decodeJSON decodes the body into dst, rejecting unknown fields, and runs
// struct validation. It writes the 400 response itself and reports false on
// failure.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("failed to decode request body")
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload", Kind: apperr.KindValidation})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		respondWithValidation(w, err)
		return false
	}

	return true
}
