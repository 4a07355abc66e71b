package api

import (
	"fmt"
	"net/http"
	"strings"

	"palaver/internal/models"
)

// AuthedHandler is a handler that runs with a verified identity.
type AuthedHandler func(w http.ResponseWriter, r *http.Request, user models.User)

// RequireAuth verifies the bearer credential and passes the resolved
// identity through. Verification failures never reach the wrapped handler.
func (h *Handlers) RequireAuth(next AuthedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, fmt.Errorf("missing bearer token: %w", models.ErrUnauthorized))
			return
		}

		user, err := h.auth.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			writeError(w, err)
			return
		}

		next(w, r, user)
	}
}
