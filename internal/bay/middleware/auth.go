// Package middleware contains HTTP middleware for the Bay API.
package middleware

import (
	"net/http"
	"strings"

	"shipyard/internal/auth"
)

// RequireBearerToken checks the Authorization header against token using a
// constant-time comparison. Every route except /health and the terminal
// WebSocket route (which authenticates itself, see handlers.Terminal) goes
// through this.
func RequireBearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			if !auth.CheckToken(token, parts[1]) {
				http.Error(w, "invalid authorization token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
