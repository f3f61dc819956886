package web

import (
	"github.com/dukex/dmflow/pkg/metrics"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

// Register mounts every route on app. A nil collector set leaves /metrics unmounted.
func (h *APIHandlers) Register(app *fiber.App, collectors *metrics.Metrics) {
	app.Get("/health", h.HealthCheck)

	if collectors != nil {
		app.Get("/metrics", adaptor.HTTPHandler(collectors.Handler()))
	}

	hooks := app.Group("/webhooks")
	hooks.Get("/instagram", h.VerifyWebhook)
	hooks.Post("/instagram", h.ReceiveWebhook)

	app.Get("/automation/track/:flowId/:nodeId", h.TrackClick)

	f := app.Group("/flows")
	f.Get("/", h.GetFlows)
	f.Post("/", h.CreateFlow)
	f.Get("/:id", h.GetFlow)
	f.Put("/:id", h.UpdateFlow)
	f.Delete("/:id", h.DeleteFlow)
	f.Post("/:id/activate", h.ActivateFlow)
	f.Post("/:id/deactivate", h.DeactivateFlow)
	f.Get("/:id/logs", h.GetFlowLogs)
}
