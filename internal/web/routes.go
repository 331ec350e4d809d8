package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/facepass/facepass/internal/web/handlers"
)

func (s *Server) setupRoutes(h *handlers.Handler) {
	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/enroll", h.Enroll)
		r.Post("/identify", h.Identify)
		r.Post("/analyze", h.Analyze)

		r.Get("/users", h.ListUsers)
		r.Delete("/users/{employeeID}", h.DeactivateUser)

		r.Get("/attendance/today", h.AttendanceToday)
		r.Get("/attendance/history/{employeeID}", h.AttendanceHistory)

		r.Get("/events", h.RecentEvents)
	})
}
