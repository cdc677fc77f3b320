/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for admin frontends

ROUTE GROUPS:
  /api/users/*      Users and reporting
  /api/settings/*   Policy settings and ledgers
  /api/templates/*  Policy templates
  /api/deductions   Approved leave bookings
  /api/adjustments  Manual corrections
  /api/sweeps/*     Batch accrual / carry-over runs
  /healthz          Liveness probe

SECURITY NOTE:
  No authentication middleware. All endpoints are public; deploy behind
  a trusted gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

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
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Get("/{id}/settings", h.ListUserSettings)
			r.Get("/{id}/summary", h.GetSummary)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/{id}", h.GetSetting)
			r.Get("/{id}/ledger", h.GetLedger)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/{id}/assign", h.AssignTemplate)
		})

		r.Post("/deductions", h.CreateDeduction)
		r.Post("/adjustments", h.CreateAdjustment)

		r.Route("/sweeps", func(r chi.Router) {
			r.Post("/accrual", h.RunAccrualSweep)
			r.Post("/carryover", h.RunCarryOverSweep)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
