package system

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type SystemApi struct{}

func NewSystemApi() *SystemApi {
	return &SystemApi{}
}

// Setup registers the unauthenticated health and metrics routes
func (h *SystemApi) Setup(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func (h *SystemApi) HealthCheck(c *fiber.Ctx) error {
	return c.SendString("OK")
}
