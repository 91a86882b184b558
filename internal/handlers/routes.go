package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/autogift/internal/middleware"
)

// Routes bundles the handlers mounted under /api
type Routes struct {
	Rules      *RuleHandler
	Executions *ExecutionHandler
	Events     *EventHandler
	Protection *ProtectionHandler
}

// Register mounts the API. userAuth and adminAuth guard the user and admin groups.
func (r *Routes) Register(app *fiber.App, userAuth, adminAuth fiber.Handler) {
	api := app.Group("/api")

	// Version middleware
	api.Use(middleware.VersionMiddleware())

	autogift := api.Group("/autogift", userAuth)

	autogift.Get("/settings", r.Rules.GetSettings)
	autogift.Patch("/settings", r.Rules.UpdateSettings)

	autogift.Get("/rules", r.Rules.GetRules)
	autogift.Post("/rules", r.Rules.CreateRule)
	autogift.Patch("/rules/:id", r.Rules.UpdateRule)
	autogift.Delete("/rules/:id", r.Rules.DeleteRule)
	autogift.Post("/rules/:id/execute", r.Executions.Execute)

	autogift.Get("/executions", r.Executions.ListExecutions)
	autogift.Post("/executions/:id/cancel", r.Executions.Cancel)

	autogift.Get("/events/summary", r.Events.GetSummary)
	autogift.Get("/events", r.Events.GetEvents)
	autogift.Post("/events", r.Events.PostEvents)

	autogift.Get("/protection/status", r.Protection.GetStatus)

	admin := api.Group("/admin", adminAuth)
	admin.Post("/protection/circuit-breaker", r.Protection.SetCircuitBreaker)
	admin.Post("/protection/reset-monthly", r.Protection.ResetMonthly)
}
