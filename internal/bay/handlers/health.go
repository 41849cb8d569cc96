package handlers

import "net/http"

// Health is a liveness and readiness probe: it also checks the database
// connection, since a Bay instance that can't reach Postgres can't do
// anything useful.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.httpError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
