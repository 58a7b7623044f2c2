package audit

import (
	"strconv"

	"go-reports/internal/api"
	"go-reports/internal/features/tenant"

	"github.com/gofiber/fiber/v2"
)

type AuditController struct {
	Service  AuditService
	Resolver tenant.Resolver
}

func NewAuditController(service AuditService, resolver tenant.Resolver) *AuditController {
	return &AuditController{Service: service, Resolver: resolver}
}

// ListLogs pages through the organization's audit trail.
func (ctrl *AuditController) ListLogs(c *fiber.Ctx) error {
	caller, err := ctrl.Resolver.Resolve(c)
	if err != nil {
		return api.RespondError(c, err)
	}

	page, _ := strconv.ParseInt(c.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.Query("limit", "20"), 10, 64)

	filters := make(map[string]interface{})
	if module := c.Query("module"); module != "" {
		filters["module"] = module
	}
	if recordID := c.Query("record_id"); recordID != "" {
		filters["record_id"] = recordID
	}

	logs, err := ctrl.Service.ListLogs(c.UserContext(), caller.OrganizationID, filters, page, limit)
	if err != nil {
		return api.RespondError(c, err)
	}

	return c.JSON(logs)
}
