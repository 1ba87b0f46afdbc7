package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Research
	r.Post("/research", s.startResearch)

	// Session routes
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Post("/message", s.postMessage)
		r.Post("/interrupt", s.interruptSession)
		r.Post("/terminate", s.terminateSession)
		r.Get("/subscribe", s.subscribeSession) // WebSocket
		r.Get("/event", s.sessionEvents)        // SSE
	})

	// Liveness and aggregate status
	r.Get("/status", s.getStatus)

	// Event streaming (SSE, all sessions)
	r.Get("/event", s.globalEvents)
}
