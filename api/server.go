/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the HR frontend

ROUTE GROUPS:
  /api/requests/*        Vacation request lifecycle
  /api/schedules/*       Vacation schedule lifecycle
  /api/employees/*       Directory, balances, conflicts, notifications
  /api/settings          Working calendar and limits
  /api/vacation-types    Vacation type catalog
  /api/admin/*           Catalog import/export, reminders
  /api/scenarios/*       Demo scenarios
  /healthz               Liveness

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

// NewRouter creates a new router with all routes configured. origins lists
// the allowed CORS origins; nil allows any.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Post("/", h.CreateRequest)
			r.Get("/upcoming", h.UpcomingRequests)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRequest)
				r.Put("/", h.EditRequest)
				r.Delete("/", h.DeleteRequest)
				r.Get("/activities", h.ListActivities)
				r.Post("/submit", h.command(h.Engine.Submit))
				r.Post("/line-manager/approve", h.decision(h.Engine.ApproveLineManager))
				r.Post("/line-manager/reject", h.rejection(h.Engine.RejectLineManager))
				r.Post("/hr/approve", h.decision(h.Engine.ApproveHR))
				r.Post("/hr/reject", h.rejection(h.Engine.RejectHR))
				r.Post("/register", h.command(h.Engine.Register))
				r.Post("/complete", h.command(h.Engine.Complete))
				r.Post("/cancel", h.command(h.Engine.Cancel))
			})
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)
			r.Post("/", h.CreateSchedule)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSchedule)
				r.Put("/", h.EditSchedule)
				r.Delete("/", h.DeleteSchedule)
				r.Post("/register", h.RegisterSchedule)
				r.Get("/activities", h.ListActivities)
			})
		})

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.SaveEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balance", h.GetBalance)
			r.Put("/{id}/balance/{year}", h.SetAllotment)
			r.Get("/{id}/conflicts", h.GetConflicts)
			r.Get("/{id}/notifications", h.ListNotifications)
		})

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)

		r.Route("/vacation-types", func(r chi.Router) {
			r.Get("/", h.ListVacationTypes)
			r.Post("/", h.SaveVacationType)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/catalog", h.ExportCatalog)
			r.Post("/catalog", h.ImportCatalog)
			r.Post("/reminders", h.RunReminders)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
