// Package bay assembles the HTTP façade: route table, middleware chain, and
// graceful lifecycle, on top of the handlers package.
package bay

import (
	"context"
	"net/http"
	"time"

	"shipyard/internal/bay/handlers"
	"shipyard/internal/bay/middleware"
)

// Server is the Bay HTTP server.
type Server struct {
	httpServer *http.Server
}

// Config carries the HTTP-layer knobs sourced from environment config.
type Config struct {
	Addr           string
	AccessToken    string
	RateLimitRPS   float64
	RateLimitBurst int
}

// New builds the route table and middleware chain.
func New(cfg Config, h *handlers.Handlers) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /stat", h.Stat)
	mux.HandleFunc("GET /stat/overview", h.Stat)

	mux.HandleFunc("POST /ship", h.AcquireShip)
	mux.HandleFunc("GET /ship/{id}", h.GetShip)
	mux.HandleFunc("DELETE /ship/{id}", h.StopShip)
	mux.HandleFunc("DELETE /ship/{id}/permanent", h.DeleteShipPermanent)
	mux.HandleFunc("POST /ship/{id}/start", h.StartShip)
	mux.HandleFunc("POST /ship/{id}/exec", h.Exec)
	mux.HandleFunc("POST /ship/{id}/extend-ttl", h.ExtendTTL)
	mux.HandleFunc("GET /ship/logs/{id}", h.Logs)
	mux.HandleFunc("POST /ship/{id}/upload", h.Upload)
	mux.HandleFunc("GET /ship/{id}/download", h.Download)

	mux.HandleFunc("GET /sessions", h.ListSessions)
	mux.HandleFunc("GET /sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.DeleteSession)
	mux.HandleFunc("GET /sessions/{id}/history", h.History)
	mux.HandleFunc("GET /sessions/{id}/history/last", h.LastHistory)
	mux.HandleFunc("GET /sessions/{id}/history/{execId}", h.HistoryByID)
	mux.HandleFunc("PATCH /sessions/{id}/history/{execId}", h.AnnotateHistory)

	var handler http.Handler = mux
	handler = middleware.RequireBearerToken(cfg.AccessToken)(handler)
	if cfg.RateLimitRPS > 0 {
		handler = middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, 5*time.Minute)(handler)
	}
	handler = middleware.RequestID(handler)

	// /health stays reachable without a token so orchestrators can probe it.
	// The terminal route authenticates itself (header or ?token=) after
	// upgrading, since a browser's native WebSocket client can't set an
	// Authorization header, so it also bypasses the bearer-token gate here.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", h.Health)
	topMux.Handle("GET /ship/{id}/term", middleware.RequestID(http.HandlerFunc(h.Terminal)))
	topMux.Handle("/", handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      topMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // exec/terminal/download can run long; timeouts are enforced per-call downstream
		},
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
