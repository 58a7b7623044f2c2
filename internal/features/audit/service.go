package audit

import (
	"context"
	"time"

	common_models "go-reports/internal/common/models"
	"go-reports/internal/features/tenant"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuditService interface {
	LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error
	ListLogs(ctx context.Context, org string, filters map[string]interface{}, page, limit int64) ([]common_models.AuditLog, error)
}

type AuditServiceImpl struct {
	Repo AuditRepository
}

func NewAuditService(repo AuditRepository) AuditService {
	return &AuditServiceImpl{
		Repo: repo,
	}
}

func (s *AuditServiceImpl) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	// Scheduled runs have no caller
	actorID := "system"
	orgID := ""
	if caller, ok := tenant.FromContext(ctx); ok {
		actorID = caller.UserID
		orgID = caller.OrganizationID
	}

	log := common_models.AuditLog{
		ID:             primitive.NewObjectID(),
		OrganizationID: orgID,
		Action:         action,
		Module:         module,
		RecordID:       recordID,
		ActorID:        actorID,
		Changes:        changes,
		Timestamp:      time.Now().UTC(),
	}

	return s.Repo.Create(ctx, log)
}

func (s *AuditServiceImpl) ListLogs(ctx context.Context, org string, filters map[string]interface{}, page, limit int64) ([]common_models.AuditLog, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit
	return s.Repo.List(ctx, org, filters, limit, offset)
}
