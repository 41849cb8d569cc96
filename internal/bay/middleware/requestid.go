package middleware

import (
	"net/http"

	"shipyard/internal/logger"

	"github.com/google/uuid"
)

// RequestID injects a correlation id into the request context, taken from
// an incoming X-Request-ID header when the caller supplies one so requests
// can be traced across a proxy hop, or generated fresh otherwise.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
