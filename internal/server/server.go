package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"relaycast/internal/api"
	"relaycast/internal/observability/metrics"
)

// Config controls router assembly and server timeouts.
type Config struct {
	Addr string
	// Token guards every /api route. Empty disables authentication; a
	// warning is logged at construction time.
	Token string
	// RateLimit is the per-client request budget per minute for /api
	// routes. Non-positive disables rate limiting.
	RateLimit int
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

// Server wraps the configured http.Server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the router around the API handler and returns the server.
func New(handler *api.Handler, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Token == "" {
		logger.Warn("api token is empty, control endpoints are unauthenticated")
	}

	router := chi.NewRouter()
	router.Use(requestIDMiddleware(logger))
	router.Use(securityHeadersMiddleware)
	router.Use(loggingMiddleware(logger))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware)
	}

	router.Get("/healthz", healthHandler(handler))
	if cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
		}
		r.Use(bearerAuthMiddleware(cfg.Token))

		r.Post("/stream/start", handler.HandleStart)
		r.Post("/stream/stop", handler.HandleStop)
		r.Get("/stream/status", handler.HandleStatus)
		r.Get("/stream/logs", handler.HandleLogs)
		r.Get("/library/categories", handler.HandleCategories)
		r.Post("/library/rescan", handler.HandleRescan)
		r.Get("/config", handler.HandleGetConfig)
		r.Put("/config", handler.HandlePutConfig)
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{httpServer: httpServer, logger: logger}
}

// HTTPServer exposes the underlying server for the runtime harness.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(handler *api.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := handler.Supervisor.State().Snapshot()
		api.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"running": snapshot.Running,
		})
	}
}
