package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go-reports/internal/api"
	"go-reports/internal/common/clock"
	"go-reports/internal/common/errs"
	common_models "go-reports/internal/common/models"
	"go-reports/internal/features/audit"
	"go-reports/internal/features/execution"
	"go-reports/internal/features/notification"
	"go-reports/internal/features/report"
	"go-reports/internal/features/tenant"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const auditModule = "report_schedules"

type ScheduleService interface {
	Create(ctx context.Context, req ScheduleRequest, caller tenant.Caller) (*Schedule, error)
	Get(ctx context.Context, id string, caller tenant.Caller) (*Schedule, error)
	List(ctx context.Context, caller tenant.Caller, reportID string) ([]Schedule, error)
	Update(ctx context.Context, id string, req ScheduleRequest, caller tenant.Caller) (*Schedule, error)
	Delete(ctx context.Context, id string, caller tenant.Caller) error
	Activate(ctx context.Context, id string, caller tenant.Caller) (*Schedule, error)
	Deactivate(ctx context.Context, id string, caller tenant.Caller) (*Schedule, error)
	// RunNow executes immediately and leaves nextRunAt alone.
	RunNow(ctx context.Context, id string, caller tenant.Caller) (*Schedule, error)
	ListExecutions(ctx context.Context, id string, caller tenant.Caller, limit int) ([]execution.Execution, error)
	ListDeliveries(ctx context.Context, id string, caller tenant.Caller, limit int) ([]notification.Delivery, error)
}

type ScheduleServiceImpl struct {
	Repo         ScheduleRepository
	Reports      execution.ReportSource
	Validator    *report.Validator
	Runner       *Runner
	Deliveries   notification.DeliveryRepository
	AuditService audit.AuditService
	Clock        clock.Clock
	Logger       *zap.Logger
}

func NewScheduleService(
	repo ScheduleRepository,
	reports report.ReportService,
	validator *report.Validator,
	runner *Runner,
	deliveries notification.DeliveryRepository,
	auditService audit.AuditService,
	clk clock.Clock,
	logger *zap.Logger,
) ScheduleService {
	return &ScheduleServiceImpl{
		Repo:         repo,
		Reports:      reports,
		Validator:    validator,
		Runner:       runner,
		Deliveries:   deliveries,
		AuditService: auditService,
		Clock:        clk,
		Logger:       logger.Named("schedules"),
	}
}

// check validates the request against the report it targets.
func (s *ScheduleServiceImpl) check(ctx context.Context, reportID string, req ScheduleRequest, caller tenant.Caller) error {
	if err := api.ValidateRequest(req); err != nil {
		return err
	}
	view, err := s.Reports.Get(ctx, reportID, caller)
	if err != nil {
		return err
	}

	var v errs.ValidationErrors
	if _, err := CronSpec(req.ScheduleType, req.ScheduleConfig); err != nil {
		v.Add("schedule_config", "invalid_schedule", "%s", err.Error())
	}
	for _, fe := range s.Validator.ValidateRuntimeFilters(view.Definition, req.FiltersPreset) {
		fe.Field = "filters_preset" + strings.TrimPrefix(fe.Field, "runtime_filters")
		v = append(v, fe)
	}
	return v.Err()
}

func (s *ScheduleServiceImpl) Create(ctx context.Context, req ScheduleRequest, caller tenant.Caller) (*Schedule, error) {
	if req.ReportID == "" {
		var v errs.ValidationErrors
		v.Add("report_id", "required", "report id is required")
		return nil, v
	}
	if err := s.check(ctx, req.ReportID, req, caller); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	sched := &Schedule{
		ID:             primitive.NewObjectID(),
		ReportID:       req.ReportID,
		OrganizationID: caller.OrganizationID,
		OwnerUserID:    caller.UserID,
		IsActive:       true,
		CreatedAt:      now,
	}
	if err := s.apply(sched, req, now); err != nil {
		return nil, err
	}
	if err := s.Repo.Create(ctx, sched); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	s.audit(ctx, common_models.AuditActionCreate, sched.ID.Hex(), map[string]common_models.Change{
		"schedule": {New: sched},
	})
	return sched, nil
}

// apply copies the editable fields and recomputes nextRunAt.
func (s *ScheduleServiceImpl) apply(sched *Schedule, req ScheduleRequest, now time.Time) error {
	sched.Name = req.Name
	sched.ScheduleType = req.ScheduleType
	sched.ScheduleConfig = req.ScheduleConfig
	sched.FiltersPreset = append([]report.FilterClause{}, req.FiltersPreset...)
	sched.RecipientEmails = dedupe(req.RecipientEmails)
	sched.ExportFormat = req.ExportFormat
	if req.IsActive != nil {
		sched.IsActive = *req.IsActive
	}
	sched.UpdatedAt = now

	sched.NextRunAt = nil
	if sched.IsActive {
		next, err := NextRun(sched, now)
		if err != nil {
			return err
		}
		sched.NextRunAt = &next
	}
	return nil
}

func dedupe(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		key := strings.ToLower(strings.TrimSpace(e))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(e))
	}
	return out
}

func (s *ScheduleServiceImpl) Get(ctx context.Context, id string, caller tenant.Caller) (*Schedule, error) {
	return s.loadOwned(ctx, id, caller)
}

func (s *ScheduleServiceImpl) List(ctx context.Context, caller tenant.Caller, reportID string) ([]Schedule, error) {
	schedules, err := s.Repo.List(ctx, caller.OrganizationID, caller.UserID, reportID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, nil
}

func (s *ScheduleServiceImpl) Update(ctx context.Context, id string, req ScheduleRequest, caller tenant.Caller) (*Schedule, error) {
	sched, err := s.loadOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, sched.ReportID, req, caller); err != nil {
		return nil, err
	}

	old := *sched
	if err := s.apply(sched, req, s.Clock.Now()); err != nil {
		return nil, err
	}
	if err := s.Repo.Update(ctx, sched); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	s.audit(ctx, common_models.AuditActionUpdate, sched.ID.Hex(), map[string]common_models.Change{
		"schedule": {Old: old, New: sched},
	})
	return sched, nil
}

func (s *ScheduleServiceImpl) Delete(ctx context.Context, id string, caller tenant.Caller) error {
	sched, err := s.loadOwned(ctx, id, caller)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, sched.ID, sched.OrganizationID); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	s.audit(ctx, common_models.AuditActionDelete, sched.ID.Hex(), map[string]common_models.Change{
		"schedule": {Old: sched, New: "DELETED"},
	})
	return nil
}

func (s *ScheduleServiceImpl) Activate(ctx context.Context, id string, caller tenant.Caller) (*Schedule, error) {
	return s.setActive(ctx, id, true, caller)
}

func (s *ScheduleServiceImpl) Deactivate(ctx context.Context, id string, caller tenant.Caller) (*Schedule, error) {
	return s.setActive(ctx, id, false, caller)
}

func (s *ScheduleServiceImpl) setActive(ctx context.Context, id string, active bool, caller tenant.Caller) (*Schedule, error) {
	sched, err := s.loadOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if sched.IsActive == active {
		return sched, nil
	}

	now := s.Clock.Now()
	var next *time.Time
	if active {
		n, err := NextRun(sched, now)
		if err != nil {
			return nil, err
		}
		next = &n
	}
	if err := s.Repo.SetActive(ctx, sched.ID, sched.OrganizationID, active, next, now); err != nil {
		return nil, fmt.Errorf("set schedule active: %w", err)
	}

	s.audit(ctx, common_models.AuditActionSchedule, sched.ID.Hex(), map[string]common_models.Change{
		"is_active": {Old: sched.IsActive, New: active},
	})
	sched.IsActive = active
	sched.NextRunAt = next
	sched.UpdatedAt = now
	return sched, nil
}

func (s *ScheduleServiceImpl) RunNow(ctx context.Context, id string, caller tenant.Caller) (*Schedule, error) {
	sched, err := s.loadOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	rec, runErr := s.Runner.Run(ctx, sched)
	if err := s.Repo.RecordRun(context.WithoutCancel(ctx), sched.ID, rec); err != nil {
		s.Logger.Error("failed to record manual run", zap.String("schedule_id", sched.ID.Hex()), zap.Error(err))
	}
	if runErr != nil {
		return nil, runErr
	}

	sched.LastExecutionID = rec.ExecutionID
	sched.LastRunAt = &rec.RunAt
	sched.LastStatus = rec.Status
	sched.LastDeliveryError = rec.DeliveryError
	return sched, nil
}

func (s *ScheduleServiceImpl) ListExecutions(ctx context.Context, id string, caller tenant.Caller, limit int) ([]execution.Execution, error) {
	sched, err := s.loadOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	return s.Runner.Engine.ListBySchedule(ctx, sched.ID.Hex(), sched.OrganizationID, limit)
}

func (s *ScheduleServiceImpl) ListDeliveries(ctx context.Context, id string, caller tenant.Caller, limit int) ([]notification.Delivery, error) {
	sched, err := s.loadOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.Deliveries.ListBySchedule(ctx, sched.OrganizationID, sched.ID.Hex(), int64(limit))
}

// loadOwned hides other organizations' schedules and refuses other users'.
func (s *ScheduleServiceImpl) loadOwned(ctx context.Context, id string, caller tenant.Caller) (*Schedule, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errs.ErrNotFound
	}
	sched, err := s.Repo.FindByID(ctx, oid, caller.OrganizationID)
	if err != nil {
		return nil, err
	}
	if sched.OwnerUserID != caller.UserID {
		return nil, errs.ErrAccessDenied
	}
	return sched, nil
}

func (s *ScheduleServiceImpl) audit(ctx context.Context, action common_models.AuditAction, recordID string, changes map[string]common_models.Change) {
	if s.AuditService == nil {
		return
	}
	if err := s.AuditService.LogChange(ctx, action, auditModule, recordID, changes); err != nil {
		s.Logger.Warn("audit log failed", zap.String("schedule_id", recordID), zap.Error(err))
	}
}
