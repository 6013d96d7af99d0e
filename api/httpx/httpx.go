// Package httpx carries the small shared plumbing of the API handlers:
// JSON rendering and the mapping from domain error types to HTTP
// status codes.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/openrp/cad/core/model"
)

// JSON writes v as a JSON response with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Error writes err as a JSON error response, mapping the domain error
// taxonomy onto status codes. Unknown errors become 500.
func Error(w http.ResponseWriter, err error) {
	kind := "internal"
	code := http.StatusInternalServerError
	switch {
	case model.IsValidation(err):
		kind, code = "validation", http.StatusBadRequest
	case model.IsNotFound(err):
		kind, code = "not_found", http.StatusNotFound
	case model.IsConflict(err):
		kind, code = "conflict", http.StatusConflict
	case model.IsInvalidTransition(err):
		kind, code = "invalid_transition", http.StatusUnprocessableEntity
	case model.IsIntegrity(err):
		kind = "integrity"
	}
	JSON(w, code, errBody{Error: err.Error(), Kind: kind})
}

// Decode reads the request body into v.
func Decode(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

// RequireBearer enforces an Authorization header when token is
// non-empty. It reports whether the request may proceed.
func RequireBearer(w http.ResponseWriter, r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	if r.Header.Get("Authorization") != "Bearer "+token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}
