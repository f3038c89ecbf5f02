/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the back-office frontend

SECURITY NOTE:
  No authentication middleware here. Auth is an external collaborator of
  this core and is expected to front the service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Schedule generation
		r.Route("/schedule", func(r chi.Router) {
			r.Post("/preview", h.PreviewSchedule)
		})

		// PDC registry and lifecycle
		r.Route("/pdcs", func(r chi.Router) {
			r.Get("/", h.ListPDCs)
			r.Post("/", h.RegisterPDC)
			r.Post("/bulk", h.RegisterBulk)
			r.Get("/summary", h.Summary)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetPDC)
				r.Post("/deposit", h.Deposit)
				r.Post("/clear", h.Clear)
				r.Post("/bounce", h.Bounce)
				r.Post("/replace", h.Replace)
				r.Post("/withdraw", h.Withdraw)
				r.Post("/cancel", h.Cancel)
			})
		})

		// Withdrawal ledger
		r.Route("/withdrawals", func(r chi.Router) {
			r.Get("/", h.ListWithdrawals)
		})
	})

	return r
}
