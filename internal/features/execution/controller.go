package execution

import (
	"fmt"

	"go-reports/internal/api"
	"go-reports/internal/features/export"
	"go-reports/internal/features/tenant"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const orgLocalKey = "execution_org"

type ExecutionController struct {
	Engine   Engine
	Resolver tenant.Resolver
}

func NewExecutionController(engine Engine, resolver tenant.Resolver) *ExecutionController {
	return &ExecutionController{Engine: engine, Resolver: resolver}
}

// PreviewDefinition runs an unsaved definition for a capped preview.
func (c *ExecutionController) PreviewDefinition(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	var req PreviewRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	req.ReportID = ""

	result, err := c.Engine.Preview(reqCtx, req, caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(result)
}

// PreviewReport runs a saved report for a capped preview.
func (c *ExecutionController) PreviewReport(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	var req PreviewRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}
	req.ReportID = ctx.Params("id")
	req.Definition = nil

	result, err := c.Engine.Preview(reqCtx, req, caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(result)
}

// Execute runs a saved report as a recorded execution, paged by default.
// With ?format=csv|xlsx|pdf the rendered file is returned as a download.
func (c *ExecutionController) Execute(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	var req ExecuteRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}
	req.ReportID = ctx.Params("id")
	req.ScheduleID = ""
	if f := ctx.Query("format"); f != "" {
		req.ExportFormat = export.Format(f)
	}
	if req.ExportFormat != "" {
		format, err := export.ParseFormat(string(req.ExportFormat))
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unsupported export format"})
		}
		req.ExportFormat = format
	}
	if p := ctx.QueryInt("page", 0); p > 0 {
		req.Page = p
	}
	if s := ctx.QueryInt("page_size", 0); s > 0 {
		req.PageSize = s
	}

	result, err := c.Engine.Execute(reqCtx, req, caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	if result.Artifact != nil {
		ctx.Set(fiber.HeaderContentType, result.Artifact.ContentType)
		ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, result.Artifact.Filename))
		ctx.Set("X-Execution-ID", result.Execution.ID.Hex())
		return ctx.Send(result.Artifact.Data)
	}
	return ctx.JSON(result)
}

// ListByReport returns recent executions of one report.
func (c *ExecutionController) ListByReport(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	executions, err := c.Engine.ListByReport(reqCtx, ctx.Params("id"), caller, ctx.QueryInt("limit", defaultListLimit))
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(executions)
}

// Get returns one execution of a visible report.
func (c *ExecutionController) Get(ctx *fiber.Ctx) error {
	reqCtx, caller, err := tenant.Bind(ctx, c.Resolver)
	if err != nil {
		return api.RespondError(ctx, err)
	}

	exec, err := c.Engine.Get(reqCtx, ctx.Params("id"), caller)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	return ctx.JSON(exec)
}

// Upgrade admits websocket clients and pins them to their organization.
func (c *ExecutionController) Upgrade(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	caller, err := c.Resolver.Resolve(ctx)
	if err != nil {
		return api.RespondError(ctx, err)
	}
	ctx.Locals(orgLocalKey, caller.OrganizationID)
	return ctx.Next()
}
