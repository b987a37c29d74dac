package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"shopcore-be/internal/catalog"
	"shopcore-be/internal/checkout"
	"shopcore-be/internal/inventory"
	"shopcore-be/internal/order"
	"shopcore-be/internal/payment"
	"shopcore-be/internal/promotion"
)

// Stable error codes. Clients branch on these, so renaming one is a
// breaking API change.
const (
	CodeValidation          = "VALIDATION"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodePromotionInvalid    = "PROMOTION_INVALID"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeDuplicateRequest    = "DUPLICATE_REQUEST"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: msg}})
}

// writeDomainError maps domain sentinels onto the stable wire codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusConflict, CodeInsufficientStock, err.Error())
	case errors.Is(err, promotion.ErrPromotionInvalid),
		errors.Is(err, promotion.ErrPromotionExpired),
		errors.Is(err, promotion.ErrPromotionNotEligible):
		writeError(w, http.StatusUnprocessableEntity, CodePromotionInvalid, err.Error())
	case errors.Is(err, checkout.ErrDuplicateInProgress):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, CodeDuplicateRequest, err.Error())
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidAmount),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, payment.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, payment.ErrIntentNotFound):
		writeError(w, http.StatusNotFound, CodeOrderNotFound, err.Error())
	case errors.Is(err, order.ErrUnauthorized):
		writeError(w, http.StatusForbidden, CodeUnauthorized, err.Error())
	default:
		var pErr *payment.ProviderError
		if errors.As(err, &pErr) {
			writeError(w, http.StatusBadGateway, CodeProviderUnavailable, "payment provider unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
