package schedule

import (
	"go-reports/internal/api"
	"go-reports/internal/features/tenant"

	"github.com/gofiber/fiber/v2"
)

type ScheduleController struct {
	Service  ScheduleService
	Resolver tenant.Resolver
}

func NewScheduleController(service ScheduleService, resolver tenant.Resolver) *ScheduleController {
	return &ScheduleController{Service: service, Resolver: resolver}
}

// Create registers a schedule for a report visible to the caller.
func (c *ScheduleController) Create(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	var req ScheduleRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	sched, err := c.Service.Create(reqCtx, req, caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(sched)
}

// List returns the caller's schedules, optionally for one report.
func (c *ScheduleController) List(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	schedules, err := c.Service.List(reqCtx, caller, ctx.Query("report_id"))
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(schedules)
}

// Get returns one schedule owned by the caller.
func (c *ScheduleController) Get(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	sched, err := c.Service.Get(reqCtx, ctx.Params("id"), caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(sched)
}

// Update replaces a schedule's configuration and recomputes its next run.
func (c *ScheduleController) Update(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	var req ScheduleRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	sched, err := c.Service.Update(reqCtx, ctx.Params("id"), req, caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(sched)
}

// Delete removes a schedule owned by the caller.
func (c *ScheduleController) Delete(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	if err := c.Service.Delete(reqCtx, ctx.Params("id"), caller); err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *ScheduleController) Activate(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	sched, err := c.Service.Activate(reqCtx, ctx.Params("id"), caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(sched)
}

func (c *ScheduleController) Deactivate(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	sched, err := c.Service.Deactivate(reqCtx, ctx.Params("id"), caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(sched)
}

// RunNow executes a schedule immediately without moving its next run.
func (c *ScheduleController) RunNow(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	sched, err := c.Service.RunNow(reqCtx, ctx.Params("id"), caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(sched)
}

func (c *ScheduleController) ListExecutions(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	executions, err := c.Service.ListExecutions(reqCtx, ctx.Params("id"), caller, ctx.QueryInt("limit", 50))
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(executions)
}

func (c *ScheduleController) ListDeliveries(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	deliveries, err := c.Service.ListDeliveries(reqCtx, ctx.Params("id"), caller, ctx.QueryInt("limit", 50))
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(deliveries)
}
