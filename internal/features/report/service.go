package report

import (
	"context"
	"fmt"

	"go-reports/internal/common/clock"
	"go-reports/internal/common/errs"
	common_models "go-reports/internal/common/models"
	"go-reports/internal/features/audit"
	"go-reports/internal/features/tenant"

	"github.com/tiendc/go-deepcopy"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const auditModule = "reports"

// CascadeDeleter removes records that hang off a report. Executions and
// schedules implement it; main wires them in to avoid an import cycle.
type CascadeDeleter interface {
	DeleteByReport(ctx context.Context, reportID string, org string) error
}

type ReportService interface {
	Create(ctx context.Context, def Definition, org, ownerUserID string) (*ReportView, error)
	Get(ctx context.Context, id string, caller tenant.Caller) (*ReportView, error)
	List(ctx context.Context, caller tenant.Caller, filter ListFilter) ([]ReportView, error)
	Update(ctx context.Context, id string, patch Patch, caller tenant.Caller) (*ReportView, error)
	Delete(ctx context.Context, id string, caller tenant.Caller) error
	Clone(ctx context.Context, id string, caller tenant.Caller) (*ReportView, error)
	SetSharing(ctx context.Context, id string, isShared bool, caller tenant.Caller) (*ReportView, error)
	ToggleFavorite(ctx context.Context, id string, caller tenant.Caller) (bool, error)
}

type ReportServiceImpl struct {
	ReportRepo   ReportRepository
	FavoriteRepo FavoriteRepository
	Validator    *Validator
	AuditService audit.AuditService
	Cascade      CascadeDeleter
	Clock        clock.Clock
	Logger       *zap.Logger
}

func NewReportService(
	reportRepo ReportRepository,
	favoriteRepo FavoriteRepository,
	validator *Validator,
	auditService audit.AuditService,
	cascade CascadeDeleter,
	clk clock.Clock,
	logger *zap.Logger,
) ReportService {
	return &ReportServiceImpl{
		ReportRepo:   reportRepo,
		FavoriteRepo: favoriteRepo,
		Validator:    validator,
		AuditService: auditService,
		Cascade:      cascade,
		Clock:        clk,
		Logger:       logger.Named("reports"),
	}
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, errs.ErrNotFound
	}
	return oid, nil
}

func (s *ReportServiceImpl) Create(ctx context.Context, def Definition, org, ownerUserID string) (*ReportView, error) {
	if err := s.Validator.Validate(def).Err(); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	report := &Report{
		ID:             primitive.NewObjectID(),
		OrganizationID: org,
		OwnerUserID:    ownerUserID,
		Definition:     def,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.ReportRepo.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	s.audit(ctx, common_models.AuditActionCreate, report.ID.Hex(), map[string]common_models.Change{
		"report": {New: report},
	})
	return &ReportView{Report: *report}, nil
}

func (s *ReportServiceImpl) Get(ctx context.Context, id string, caller tenant.Caller) (*ReportView, error) {
	report, err := s.load(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	fav, err := s.FavoriteRepo.IsFavorite(ctx, caller.UserID, report.ID)
	if err != nil {
		return nil, fmt.Errorf("load favorite: %w", err)
	}
	return &ReportView{Report: *report, IsFavorite: fav}, nil
}

func (s *ReportServiceImpl) List(ctx context.Context, caller tenant.Caller, filter ListFilter) ([]ReportView, error) {
	favIDs, err := s.FavoriteRepo.ListReportIDs(ctx, caller.UserID, caller.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}

	var only []primitive.ObjectID
	if filter.FavoritesOnly {
		only = favIDs
	}
	reports, err := s.ReportRepo.List(ctx, caller.OrganizationID, caller.UserID, filter, only)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	favs := make(map[primitive.ObjectID]bool, len(favIDs))
	for _, id := range favIDs {
		favs[id] = true
	}
	views := make([]ReportView, 0, len(reports))
	for _, r := range reports {
		views = append(views, ReportView{Report: r, IsFavorite: favs[r.ID]})
	}
	return views, nil
}

func (s *ReportServiceImpl) Update(ctx context.Context, id string, patch Patch, caller tenant.Caller) (*ReportView, error) {
	report, err := s.loadOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	var base Definition
	if err := deepcopy.Copy(&base, &report.Definition); err != nil {
		return nil, fmt.Errorf("copy definition: %w", err)
	}
	merged := patch.Apply(base)
	if err := s.Validator.Validate(merged).Err(); err != nil {
		return nil, err
	}

	old := *report
	report.Definition = merged
	report.Version++
	report.UpdatedAt = s.Clock.Now()
	if err := s.ReportRepo.Update(ctx, report); err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}

	s.audit(ctx, common_models.AuditActionUpdate, report.ID.Hex(), map[string]common_models.Change{
		"definition": {Old: old.Definition, New: report.Definition},
		"version":    {Old: old.Version, New: report.Version},
	})
	return s.Get(ctx, id, caller)
}

// Delete removes the report along with its executions, schedules and favorites.
func (s *ReportServiceImpl) Delete(ctx context.Context, id string, caller tenant.Caller) error {
	report, err := s.loadOwned(ctx, id, caller)
	if err != nil {
		return err
	}

	if s.Cascade != nil {
		if err := s.Cascade.DeleteByReport(ctx, report.ID.Hex(), report.OrganizationID); err != nil {
			return fmt.Errorf("delete report dependents: %w", err)
		}
	}
	if err := s.FavoriteRepo.DeleteByReport(ctx, report.ID); err != nil {
		return fmt.Errorf("delete report favorites: %w", err)
	}
	if err := s.ReportRepo.Delete(ctx, report.ID, report.OrganizationID); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}

	s.audit(ctx, common_models.AuditActionDelete, report.ID.Hex(), map[string]common_models.Change{
		"report": {Old: report, New: "DELETED"},
	})
	return nil
}

// Clone copies a visible report into a new, private report owned by caller.
func (s *ReportServiceImpl) Clone(ctx context.Context, id string, caller tenant.Caller) (*ReportView, error) {
	src, err := s.load(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	var def Definition
	if err := deepcopy.Copy(&def, &src.Definition); err != nil {
		return nil, fmt.Errorf("copy definition: %w", err)
	}
	def.Name = src.Name + " (copy)"

	now := s.Clock.Now()
	clone := &Report{
		ID:             primitive.NewObjectID(),
		OrganizationID: caller.OrganizationID,
		OwnerUserID:    caller.UserID,
		Definition:     def,
		IsShared:       false,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.ReportRepo.Create(ctx, clone); err != nil {
		return nil, fmt.Errorf("create clone: %w", err)
	}

	s.audit(ctx, common_models.AuditActionClone, clone.ID.Hex(), map[string]common_models.Change{
		"source_report_id": {New: src.ID.Hex()},
	})
	return &ReportView{Report: *clone}, nil
}

func (s *ReportServiceImpl) SetSharing(ctx context.Context, id string, isShared bool, caller tenant.Caller) (*ReportView, error) {
	report, err := s.loadOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if report.IsShared != isShared {
		if err := s.ReportRepo.SetSharing(ctx, report.ID, report.OrganizationID, isShared, s.Clock.Now()); err != nil {
			return nil, fmt.Errorf("set sharing: %w", err)
		}
		s.audit(ctx, common_models.AuditActionShare, report.ID.Hex(), map[string]common_models.Change{
			"is_shared": {Old: report.IsShared, New: isShared},
		})
	}
	return s.Get(ctx, id, caller)
}

// ToggleFavorite flips the caller's own mark only.
func (s *ReportServiceImpl) ToggleFavorite(ctx context.Context, id string, caller tenant.Caller) (bool, error) {
	report, err := s.load(ctx, id, caller)
	if err != nil {
		return false, err
	}
	fav, err := s.FavoriteRepo.Toggle(ctx, caller.UserID, report.ID, caller.OrganizationID, s.Clock.Now())
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	return fav, nil
}

func (s *ReportServiceImpl) load(ctx context.Context, id string, caller tenant.Caller) (*Report, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.ReportRepo.FindVisible(ctx, oid, caller.OrganizationID, caller.UserID)
}

func (s *ReportServiceImpl) loadOwned(ctx context.Context, id string, caller tenant.Caller) (*Report, error) {
	report, err := s.load(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if report.OwnerUserID != caller.UserID {
		return nil, errs.ErrAccessDenied
	}
	return report, nil
}

func (s *ReportServiceImpl) audit(ctx context.Context, action common_models.AuditAction, recordID string, changes map[string]common_models.Change) {
	if s.AuditService == nil {
		return
	}
	if err := s.AuditService.LogChange(ctx, action, auditModule, recordID, changes); err != nil {
		s.Logger.Warn("audit log failed", zap.String("report_id", recordID), zap.Error(err))
	}
}
