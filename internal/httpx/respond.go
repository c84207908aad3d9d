// Package httpx holds small HTTP response helpers shared by handlers.
package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/devcoda25/myaccounts-bk-sub000/internal/apperr"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response", "error", err)
	}
}

// ErrorBody is the JSON shape of error responses.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteError maps err through the apperr taxonomy. Internal causes are
// logged server-side and never surfaced.
func WriteError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	WriteJSON(w, status, ErrorBody{Error: apperr.PublicMessage(err), Code: apperr.CodeOf(err)})
}
