// Package web exposes the attendance core to the operator console over
// HTTP. The console drives sessions through it; the camera loop feeds
// frames either through the pump or the frames endpoint.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hadir-dev/hadir/internal/config"
	"github.com/hadir-dev/hadir/internal/database"
	"github.com/hadir-dev/hadir/internal/database/sqlite"
	"github.com/hadir-dev/hadir/internal/facematch"
	"github.com/hadir-dev/hadir/internal/logging"
	"github.com/hadir-dev/hadir/internal/session"
	"github.com/hadir-dev/hadir/internal/stream"
	"github.com/hadir-dev/hadir/internal/syncer"
	"github.com/hadir-dev/hadir/internal/web/middleware"
)

// Dependencies are the wired components the handlers serve.
type Dependencies struct {
	Coordinator *session.Coordinator
	Matcher     *facematch.Matcher
	Pump        *stream.Pump
	Index       *database.Index
	Ledger      *sqlite.Ledger
	Reconciler  *syncer.Reconciler
	// Enrollments reloads the index on demand; nil disables the endpoint.
	Enrollments database.IdentitySource
}

// Server represents the web server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	tokens     *middleware.TokenManager
	logger     *slog.Logger
}

// NewServer creates a new web server
func NewServer(cfg config.WebConfig, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}

	r := chi.NewRouter()

	s := &Server{
		router: r,
		tokens: middleware.NewTokenManager(cfg.SessionSecret),
		logger: logger,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS(cfg.CORSOrigin))

	s.setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for the SSE feed
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
