package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-tracker/internal/api/http/handlers"
	"github.com/spec-kit/locate-tracker/internal/auth"
	"github.com/spec-kit/locate-tracker/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Jobs           *handlers.JobsHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Snapshot)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	api.Get("/jurisdictions", cfg.Tickets.Jurisdictions)

	editor := auth.RequireRole(domain.RoleEditor)
	admin := auth.RequireRole(domain.RoleAdmin)

	tickets := api.Group("/tickets")
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/stats", cfg.Tickets.Stats)
	tickets.Post("", editor, cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Put("/:id", editor, cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/renew", editor, cfg.Tickets.RenewTicket)
	tickets.Delete("/:id", admin, cfg.Tickets.DeleteTicket)

	jobs := api.Group("/jobs", admin)
	jobs.Post("/reconcile", cfg.Jobs.Reconcile)
	jobs.Post("/notify", cfg.Jobs.Notify)
}
