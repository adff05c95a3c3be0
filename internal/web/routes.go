package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/hadir-dev/hadir/internal/web/handlers"
	"github.com/hadir-dev/hadir/internal/web/middleware"
)

func (s *Server) setupRoutes(deps Dependencies) {
	// Create handlers
	sessionHandler := handlers.NewSessionHandler(deps.Coordinator, deps.Matcher, deps.Pump, s.tokens, s.logger)
	attendanceHandler := handlers.NewAttendanceHandler(deps.Ledger, s.logger)
	syncHandler := handlers.NewSyncHandler(deps.Reconciler)
	statsHandler := handlers.NewStatsHandler(deps.Index, deps.Ledger, deps.Pump, deps.Reconciler, s.logger)
	enrollmentsHandler := handlers.NewEnrollmentsHandler(deps.Index, deps.Enrollments, s.logger)

	// Health check (no token required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Opening a session issues the token; status and the event feed
		// are read-only and stay open to the console.
		r.Post("/session", sessionHandler.Open)
		r.Get("/session", sessionHandler.Status)
		r.Get("/session/events", sessionHandler.Events)

		// Frame submission and close are bound to the session that
		// issued the token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(s.tokens, deps.Coordinator.SessionID))
			r.Post("/session/frames", sessionHandler.SubmitFrame)
			r.Delete("/session", sessionHandler.Close)
		})

		// Sync
		r.Post("/sync", syncHandler.Trigger)

		// Attendance
		r.Get("/attendance/{class}", attendanceHandler.List)
		r.Get("/attendance/{class}/export", attendanceHandler.Export)

		// Stats
		r.Get("/stats", statsHandler.Get)

		// Enrollments
		r.Post("/enrollments/reload", enrollmentsHandler.Reload)
	})
}
