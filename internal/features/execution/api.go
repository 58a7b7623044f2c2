package execution

import (
	"go-reports/internal/config"
	"go-reports/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type ExecutionApi struct {
	Controller *ExecutionController
	Hub        *Hub
	Config     *config.Config
}

func NewExecutionApi(controller *ExecutionController, hub *Hub, config *config.Config) *ExecutionApi {
	return &ExecutionApi{
		Controller: controller,
		Hub:        hub,
		Config:     config,
	}
}

func (api *ExecutionApi) Setup(app *fiber.App) {
	auth := middleware.AuthMiddleware(api.Config.SkipAuth)

	reports := app.Group("/api/reports")
	reports.Post("/preview", auth, api.Controller.PreviewDefinition)
	reports.Post("/:id/preview", auth, api.Controller.PreviewReport)
	reports.Post("/:id/execute", auth, api.Controller.Execute)
	reports.Get("/:id/executions", auth, api.Controller.ListByReport)

	app.Get("/api/executions/:id", auth, api.Controller.Get)

	app.Get("/ws/executions", auth, api.Controller.Upgrade, websocket.New(api.Hub.Serve))
}
