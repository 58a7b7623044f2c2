package registry

import (
	"go-reports/internal/config"
	"go-reports/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type RegistryApi struct {
	RegistryController *RegistryController
	Config             *config.Config
}

func NewRegistryApi(registryController *RegistryController, config *config.Config) *RegistryApi {
	return &RegistryApi{
		RegistryController: registryController,
		Config:             config,
	}
}

func (api *RegistryApi) Setup(app *fiber.App) {
	group := app.Group("/api/report-sources", middleware.AuthMiddleware(api.Config.SkipAuth))

	// Static paths before the :name param
	group.Get("/operators", api.RegistryController.Operators)
	group.Get("/aggregations", api.RegistryController.Aggregations)
	group.Get("/", api.RegistryController.List)
	group.Get("/:name", api.RegistryController.Get)
}
