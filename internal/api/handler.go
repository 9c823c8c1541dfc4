// Package api provides the view-facing HTTP handlers. Handlers hold no
// business rules: they translate requests into calls on the session and
// document components and render their state.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/loanifi/loanifi-console/internal/gateway"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// GatewayError renders a backend boundary failure. An auth failure maps
// to 401 so the view knows a retry will not help without new
// credentials; everything else is a bad-gateway condition.
func GatewayError(w http.ResponseWriter, err error) {
	switch gateway.KindOf(err) {
	case gateway.KindAuth:
		Error(w, http.StatusUnauthorized, "reauthentication required")
	case gateway.KindApplication:
		Error(w, http.StatusBadGateway, err.Error())
	default:
		Error(w, http.StatusBadGateway, "backend unavailable")
	}
}
