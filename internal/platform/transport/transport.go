// Package transport holds the JSON helpers shared by HTTP handlers,
// including the single mapping from domain error codes to status codes.
package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "fieldops/pkg/domain-errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes v with the given status. Encoding failures are logged,
// not surfaced; the status line is already gone.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", "error", err)
	}
}

// WriteError maps a domain error to its HTTP status and body.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	WriteJSON(w, statusOf(code), errorBody{Error: errorDetail{
		Code:    string(code),
		Message: dErrors.MessageOf(err),
	}})
}

func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeStore:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
