// Package server wires the famsync HTTP API: routing, middleware and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/iudanet/famsync/internal/applier"
	"github.com/iudanet/famsync/internal/metrics"
	"github.com/iudanet/famsync/internal/server/handlers"
	"github.com/iudanet/famsync/internal/server/middleware"
	"github.com/iudanet/famsync/internal/server/nudge"
	"github.com/iudanet/famsync/internal/server/storage"
)

const shutdownTimeout = 10 * time.Second

// Store is everything the HTTP API needs from the server database.
type Store interface {
	storage.SyncStorage
	storage.AuditStorage
	middleware.DeviceRegistry
	handlers.Pinger
}

// Options configure the router. Publisher defaults to Hub.
type Options struct {
	Store      Store
	Applier    *applier.Applier
	Hub        *nudge.Hub
	Publisher  handlers.NudgePublisher
	Logger     *slog.Logger
	JWT        handlers.JWTConfig
	RateWindow time.Duration
	RateLimit  int // запросов на устройство за RateWindow, 0 - без ограничения
}

// NewRouter builds the chi router of the famsync API.
func NewRouter(opts Options) http.Handler {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = opts.Hub
	}

	healthHandler := handlers.NewHealthHandler(opts.Logger, opts.Store)
	syncHandler := handlers.NewSyncHandler(opts.Logger, opts.Store, opts.Applier, publisher)
	conflictsHandler := handlers.NewConflictsHandler(opts.Logger, opts.Store)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogging(opts.Logger, "/api/v1/health", "/metrics"))
	r.Use(middleware.RecoveryMiddleware(opts.Logger))

	r.Get("/api/v1/health", healthHandler.Health)
	r.Handle("/metrics", metrics.Handler())

	// Защищенные эндпоинты: токен устройства обязателен
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(opts.Logger, opts.JWT, opts.Store))
		if opts.RateLimit > 0 {
			r.Use(middleware.RateLimitMiddleware(opts.RateLimit, opts.RateWindow, opts.Logger))
		}

		r.Post("/api/v1/sync", syncHandler.HandleSync)
		r.Get("/api/v1/conflicts", conflictsHandler.List)
		r.Get("/api/v1/nudge", opts.Hub.ServeHTTP)
	})

	return r
}

// Server is the famsync HTTP server.
type Server struct {
	http   *http.Server
	hub    *nudge.Hub
	logger *slog.Logger
}

// New creates a server listening on addr.
func New(addr string, handler http.Handler, hub *nudge.Hub, logger *slog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		hub:    hub,
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
// Websocket subscribers are closed first so Shutdown does not wait on them.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	if s.hub != nil {
		s.hub.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
