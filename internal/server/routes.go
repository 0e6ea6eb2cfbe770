package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// setupRoutes builds the router. The federation endpoint is public; the
// share and mount API requires basic auth.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// RequestID must come first so the access log can carry it.
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	if s.acme != nil {
		r.Handle("/.well-known/acme-challenge/*", s.acme.ChallengeHandler())
	}

	// Inbound federation endpoint. Remotes authenticate shares by the
	// secrets they carry, not by a local session.
	r.Post("/ocm/shares", s.handleIncomingShare)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.basicAuth)

			r.Route("/shares", func(r chi.Router) {
				r.Get("/pending", s.handleListPending)
				r.Get("/badge", s.handleBadge)
				r.Get("/{shareID}", s.handleGetShare)
				r.Post("/{shareID}/accept", s.handleAcceptShare)
				r.Post("/{shareID}/decline", s.handleDeclineShare)
			})

			r.Route("/mounts", func(r chi.Router) {
				r.Get("/", s.handleListMounts)
				r.Post("/move", s.handleMoveMount)
				r.Post("/remove", s.handleRemoveMount)
			})
		})
	})

	return r
}
