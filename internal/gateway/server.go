package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(g.config.AllowedOrigins))

	// Public: no auth required.
	r.Get("/health", g.handleHealth())
	if g.promH != nil {
		r.Handle("/metrics", g.promH)
	}

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.limiter, g.logger))
		}

		r.Group(func(r chi.Router) {
			r.Use(rateLimitMiddleware(g.limiter))
			r.Post("/chat", g.handleChat())
			r.Post("/chat/stream", g.handleChatStream())
			r.Get("/ws/chat", g.handleWebSocket())
			r.Post("/threads/{thread_id}/{persona_id}/resume", g.handleResume())
		})

		r.Get("/personas", g.handlePersonas())
		r.Post("/reset-memory", g.handleResetMemory())
		r.Get("/threads", g.handleListThreads())
		r.Get("/threads/{thread_id}/{persona_id}", g.handleGetThread())
		r.Delete("/threads/{thread_id}/{persona_id}", g.handleDeleteThread())
		r.Get("/status", g.handleStatus())

		// Admin introspection is only mounted behind auth.
		if g.config.Auth.IsConfigured() {
			r.Route("/api", func(r chi.Router) {
				r.Get("/modules", g.handleListModules())
				r.Get("/config", g.handleGetConfig())
			})
		}
	})

	return r
}
