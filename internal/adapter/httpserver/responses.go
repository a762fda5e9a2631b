// Package httpserver contains the HTTP handlers and middleware of the
// control plane. Every response, success or failure, uses the common
// {code, message, data} envelope.
package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/claymoreai/claymore/internal/domain"
)

// CommonResponse is the wire envelope of every endpoint.
type CommonResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSuccess emits the 200 envelope. A nil data becomes an empty object.
func writeSuccess(w http.ResponseWriter, data any) {
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, http.StatusOK, CommonResponse{Code: http.StatusOK, Message: "success", Data: data})
}

// writeError maps domain sentinels onto the envelope. Validation and auth
// errors surface as is; everything else is logged and returned opaque.
func writeError(w http.ResponseWriter, r *http.Request, err error, data any) {
	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
		message = "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
		message = "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		message = "not found"
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusUnprocessableEntity
		message = "validation failed"
	default:
		slog.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, status, CommonResponse{Code: status, Message: message, Data: data})
}
