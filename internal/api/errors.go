package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gridprobe/gridprobe/internal/core"
)

// errorBody is the JSON envelope for every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Category string `json:"category"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
}

// statusFor maps an error category to an HTTP status.
func statusFor(category core.ErrorCategory) int {
	switch category {
	case core.ErrCatValidation, core.ErrCatPrediction:
		return http.StatusUnprocessableEntity
	case core.ErrCatNotFound:
		return http.StatusNotFound
	case core.ErrCatState:
		return http.StatusConflict
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests
	case core.ErrCatTransport:
		return http.StatusGatewayTimeout
	case core.ErrCatSchema, core.ErrCatTruncated:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
			Category: string(core.ErrCatInternal),
			Message:  "internal error",
		}})
		return
	}
	writeJSON(w, statusFor(domErr.Category), errorBody{Error: errorDetail{
		Category: string(domErr.Category),
		Code:     domErr.Code,
		Message:  domErr.Message,
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
