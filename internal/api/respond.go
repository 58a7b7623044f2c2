package api

import (
	"errors"

	"go-reports/internal/common/errs"

	"github.com/gofiber/fiber/v2"
)

// RespondError maps the error taxonomy onto HTTP responses. Anything not
// recognised is reported as a generic failure.
func RespondError(ctx *fiber.Ctx, err error) error {
	if v, ok := errs.AsValidation(err); ok {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": v,
		})
	}

	var execErr *errs.ExecutionError
	if errors.As(err, &execErr) {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":        execErr.Message,
			"execution_id": execErr.ExecutionID,
			"retryable":    execErr.Retryable,
		})
	}

	switch {
	case errors.Is(err, errs.ErrNotFound):
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.Is(err, errs.ErrAccessDenied):
		return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied"})
	case errors.Is(err, errs.ErrScheduleConflict):
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "A run is already in progress"})
	}

	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}
