package report

import (
	"go-reports/internal/api"
	"go-reports/internal/features/tenant"

	"github.com/gofiber/fiber/v2"
)

type ReportController struct {
	ReportService ReportService
	Resolver      tenant.Resolver
}

func NewReportController(reportService ReportService, resolver tenant.Resolver) *ReportController {
	return &ReportController{ReportService: reportService, Resolver: resolver}
}

type SharingRequest struct {
	IsShared *bool `json:"is_shared" validate:"required"`
}

// Create saves a new validated report definition owned by the caller.
func (c *ReportController) Create(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	var def Definition
	if err := ctx.BodyParser(&def); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	report, err := c.ReportService.Create(reqCtx, def, caller.OrganizationID, caller.UserID)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(report)
}

// List returns the reports visible to the caller, narrowed by query filters.
func (c *ReportController) List(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	filter := ListFilter{
		Category:      ctx.Query("category"),
		FavoritesOnly: ctx.QueryBool("favorites", false),
		SharedOnly:    ctx.QueryBool("shared", false),
		Search:        ctx.Query("search"),
	}
	reports, err := c.ReportService.List(reqCtx, caller, filter)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(reports)
}

// Get returns one visible report with the caller's favorite flag.
func (c *ReportController) Get(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	report, err := c.ReportService.Get(reqCtx, ctx.Params("id"), caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(report)
}

// Update applies a partial change to a report the caller owns.
func (c *ReportController) Update(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	var patch Patch
	if err := ctx.BodyParser(&patch); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	report, err := c.ReportService.Update(reqCtx, ctx.Params("id"), patch, caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(report)
}

// Delete removes an owned report with its schedules and executions.
func (c *ReportController) Delete(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	if err := c.ReportService.Delete(reqCtx, ctx.Params("id"), caller); err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// Clone copies a visible report into a new one owned by the caller.
func (c *ReportController) Clone(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	report, err := c.ReportService.Clone(reqCtx, ctx.Params("id"), caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(report)
}

// SetSharing turns organization-wide visibility on or off.
func (c *ReportController) SetSharing(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	var req SharingRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := api.ValidateRequest(req); err != nil {
		return api.RespondError(ctx, err)
	}

	report, err := c.ReportService.SetSharing(reqCtx, ctx.Params("id"), *req.IsShared, caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(report)
}

// ToggleFavorite flips the caller's favorite mark on a report.
func (c *ReportController) ToggleFavorite(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	fav, err := c.ReportService.ToggleFavorite(reqCtx, ctx.Params("id"), caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(fiber.Map{"is_favorite": fav})
}
