package registry

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type RegistryController struct {
	Registry Registry
}

func NewRegistryController(registry Registry) *RegistryController {
	return &RegistryController{Registry: registry}
}

// List returns every registered source.
func (c *RegistryController) List(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{
		"version": c.Registry.Version(),
		"sources": c.Registry.ListSources(),
	})
}

// Get returns one source with its fields and relations.
func (c *RegistryController) Get(ctx *fiber.Ctx) error {
	src, err := c.Registry.GetSource(ctx.Params("name"))
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Source not found"})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	return ctx.JSON(src)
}

// Operators returns the filter operators allowed per field type.
func (c *RegistryController) Operators(ctx *fiber.Ctx) error {
	return ctx.JSON(c.Registry.ListOperators())
}

// Aggregations returns the supported aggregation functions.
func (c *RegistryController) Aggregations(ctx *fiber.Ctx) error {
	return ctx.JSON(c.Registry.ListAggregations())
}
