package server

import (
	"net/http"

	"github.com/ajitpratap0/prepdash/pkg/errors"
	"github.com/ajitpratap0/prepdash/pkg/json"
)

type errorResponse struct {
	Error   string           `json:"error"`
	Type    errors.ErrorType `json:"type"`
	Message string           `json:"message"`
}

// statusFor maps an error type to an HTTP status.
func statusFor(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeValidation, errors.ErrorTypeCoercion:
		return http.StatusUnprocessableEntity
	case errors.ErrorTypeParse:
		return http.StatusBadRequest
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.Encode(w, v)
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorStatus(w, statusFor(err), err)
}

func writeErrorStatus(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{
		Error:   err.Error(),
		Type:    errors.TypeOf(err),
		Message: errors.UserMessage(err),
	})
}
