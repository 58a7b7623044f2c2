package schedule

import (
	"go-reports/internal/config"
	"go-reports/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ScheduleApi struct {
	ScheduleController *ScheduleController
	Config             *config.Config
}

func NewScheduleApi(scheduleController *ScheduleController, config *config.Config) *ScheduleApi {
	return &ScheduleApi{
		ScheduleController: scheduleController,
		Config:             config,
	}
}

func (h *ScheduleApi) Setup(app *fiber.App) {
	schedules := app.Group("/api/report-schedules", middleware.AuthMiddleware(h.Config.SkipAuth))

	schedules.Post("/", h.ScheduleController.Create)
	schedules.Get("/", h.ScheduleController.List)
	schedules.Get("/:id", h.ScheduleController.Get)
	schedules.Put("/:id", h.ScheduleController.Update)
	schedules.Delete("/:id", h.ScheduleController.Delete)

	schedules.Post("/:id/activate", h.ScheduleController.Activate)
	schedules.Post("/:id/deactivate", h.ScheduleController.Deactivate)
	schedules.Post("/:id/run", h.ScheduleController.RunNow)
	schedules.Get("/:id/executions", h.ScheduleController.ListExecutions)
	schedules.Get("/:id/deliveries", h.ScheduleController.ListDeliveries)
}
