package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"possale/internal/locking"
	"possale/internal/models"
	"possale/internal/pos"
	"possale/internal/validation"
)

// JSON writes a successful API response with the given data.
func JSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.APIResponse{Data: data})
}

// Created writes data with status 201.
func Created(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.APIResponse{Data: data})
}

// JSONMeta writes a successful API response with pagination metadata.
func JSONMeta(w http.ResponseWriter, data interface{}, total, page, limit int) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.APIResponse{
		Data: data,
		Meta: &models.Meta{Total: total, Page: page, Limit: limit},
	})
}

// Err writes a JSON error response with the given message and HTTP status code.
func Err(w http.ResponseWriter, msg string, code int) {
	ErrCode(w, msg, "", code)
}

// ErrCode writes an error response carrying a machine-readable code.
func ErrCode(w http.ResponseWriter, msg, errCode string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{"error": msg}
	if errCode != "" {
		body["code"] = errCode
	}
	json.NewEncoder(w).Encode(body)
}

// Error maps a domain error to its HTTP status and code. Unknown errors are
// reported as 500 without their text.
func Error(w http.ResponseWriter, err error) {
	var ve *validation.ValidationErrors
	var se *pos.StockError
	switch {
	case errors.As(err, &ve):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":  "validation failed",
			"code":   "VALIDATION_ERROR",
			"fields": ve.Errors,
		})
	case errors.As(err, &se):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":     se.Error(),
			"code":      "INSUFFICIENT_STOCK",
			"batch_id":  se.BatchID,
			"available": se.Available,
		})
	case errors.Is(err, pos.ErrInsufficientStock):
		ErrCode(w, err.Error(), "INSUFFICIENT_STOCK", http.StatusConflict)
	case errors.Is(err, pos.ErrInvalidPayment):
		ErrCode(w, err.Error(), "INVALID_PAYMENT", http.StatusPaymentRequired)
	case errors.Is(err, pos.ErrWindowExpired):
		ErrCode(w, err.Error(), "WINDOW_EXPIRED", http.StatusConflict)
	case errors.Is(err, pos.ErrWindowAlreadyUsed):
		ErrCode(w, err.Error(), "WINDOW_ALREADY_USED", http.StatusConflict)
	case errors.Is(err, pos.ErrNotLatestSale):
		ErrCode(w, err.Error(), "NOT_LATEST_SALE", http.StatusConflict)
	case errors.Is(err, pos.ErrSaleNotFound), errors.Is(err, pos.ErrProductNotFound), errors.Is(err, pos.ErrBatchNotFound):
		ErrCode(w, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, pos.ErrForbidden):
		ErrCode(w, err.Error(), "FORBIDDEN", http.StatusForbidden)
	case errors.Is(err, locking.ErrLockBusy):
		ErrCode(w, err.Error(), "BUSY", http.StatusServiceUnavailable)
	default:
		ErrCode(w, "internal error", "INTERNAL", http.StatusInternalServerError)
	}
}

// DecodeBody decodes a JSON request body into the given value.
func DecodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
