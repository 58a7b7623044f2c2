package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go-reports/internal/common/clock"
	"go-reports/internal/common/errs"
	"go-reports/internal/config"
	"go-reports/internal/features/export"
	"go-reports/internal/features/query"
	"go-reports/internal/features/report"
	"go-reports/internal/features/tenant"
	"go-reports/internal/metrics"
	"go-reports/pkg/utils"

	"github.com/tiendc/go-deepcopy"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const defaultListLimit = 50

// ReportSource loads a report the caller can see. report.ReportService satisfies it.
type ReportSource interface {
	Get(ctx context.Context, id string, caller tenant.Caller) (*report.ReportView, error)
}

// Publisher is told about every status transition.
type Publisher interface {
	Publish(e Execution)
}

type Limits struct {
	PreviewRows     int
	ExportRows      int
	DefaultPageSize int
	MaxPageSize     int
}

type Engine interface {
	Preview(ctx context.Context, req PreviewRequest, caller tenant.Caller) (*PreviewResult, error)
	Execute(ctx context.Context, req ExecuteRequest, caller tenant.Caller) (*ExecutionResult, error)
	Get(ctx context.Context, id string, caller tenant.Caller) (*Execution, error)
	ListByReport(ctx context.Context, reportID string, caller tenant.Caller, limit int) ([]Execution, error)
	ListBySchedule(ctx context.Context, scheduleID, org string, limit int) ([]Execution, error)
}

type EngineImpl struct {
	Reports   ReportSource
	Repo      ExecutionRepository
	Planner   *query.Planner
	Reader    query.Reader
	Renderer  export.Renderer
	Publisher Publisher
	Limits    Limits
	Clock     clock.Clock
	Logger    *zap.Logger
}

func NewEngine(
	reports report.ReportService,
	repo ExecutionRepository,
	planner *query.Planner,
	reader query.Reader,
	renderer export.Renderer,
	hub *Hub,
	cfg *config.Config,
	clk clock.Clock,
	logger *zap.Logger,
) Engine {
	return &EngineImpl{
		Reports:   reports,
		Repo:      repo,
		Planner:   planner,
		Reader:    reader,
		Renderer:  renderer,
		Publisher: hub,
		Limits: Limits{
			PreviewRows:     cfg.PreviewRowLimit,
			ExportRows:      cfg.ExportRowLimit,
			DefaultPageSize: cfg.DefaultPageSize,
			MaxPageSize:     cfg.MaxPageSize,
		},
		Clock:  clk,
		Logger: logger.Named("execution"),
	}
}

// Preview runs a capped query and records nothing.
func (e *EngineImpl) Preview(ctx context.Context, req PreviewRequest, caller tenant.Caller) (*PreviewResult, error) {
	var def report.Definition
	switch {
	case req.ReportID != "":
		view, err := e.Reports.Get(ctx, req.ReportID, caller)
		if err != nil {
			return nil, err
		}
		if err := deepcopy.Copy(&def, &view.Definition); err != nil {
			return nil, fmt.Errorf("snapshot definition: %w", err)
		}
	case req.Definition != nil:
		def = *req.Definition
	default:
		var v errs.ValidationErrors
		v.Add("definition", "required", "a report id or a definition is required")
		return nil, v
	}

	plan, err := e.Planner.BuildPlan(def, req.RuntimeFilters, caller.OrganizationID)
	if err != nil {
		return nil, err
	}

	limit := e.Limits.PreviewRows
	rows, err := e.Reader.Query(ctx, plan.WithPage(limit+1, 0))
	if err != nil {
		e.Logger.Error("preview query failed",
			zap.String("report_id", req.ReportID),
			zap.String("organization_id", caller.OrganizationID),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return nil, errs.NewExecutionError("", errs.KindCancelled, "Preview was cancelled", true, err)
		}
		return nil, errs.NewExecutionError("", errs.KindQuery, "Preview failed", true, err)
	}
	metrics.ObservePreview()

	result := &PreviewResult{Columns: columnsOf(plan), Rows: rows}
	if len(rows) > limit {
		result.Rows = rows[:limit]
		result.Truncated = true
	}
	return result, nil
}

// Execute runs a stored report and records the run. Every failure after the
// execution record exists comes back as *errs.ExecutionError.
func (e *EngineImpl) Execute(ctx context.Context, req ExecuteRequest, caller tenant.Caller) (*ExecutionResult, error) {
	view, err := e.Reports.Get(ctx, req.ReportID, caller)
	if err != nil {
		return nil, err
	}
	// The report may be edited while this run is in flight
	var def report.Definition
	if err := deepcopy.Copy(&def, &view.Definition); err != nil {
		return nil, fmt.Errorf("snapshot definition: %w", err)
	}

	exec := &Execution{
		ID:             primitive.NewObjectID(),
		ReportID:       view.ID.Hex(),
		ReportVersion:  view.Version,
		OrganizationID: caller.OrganizationID,
		ScheduleID:     req.ScheduleID,
		FiltersUsed:    append([]report.FilterClause{}, req.RuntimeFilters...),
		ExportFormat:   req.ExportFormat,
		Status:         StatusPending,
		CreatedAt:      e.Clock.Now(),
	}
	if req.ScheduleID == "" {
		exec.TriggeredByUserID = caller.UserID
	}
	if err := e.Repo.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	e.publish(exec)

	started := e.Clock.Now()
	if err := e.Repo.MarkRunning(ctx, exec.ID, started); err != nil {
		return nil, e.fail(ctx, exec, fmt.Errorf("start execution: %w", err))
	}
	exec.Status = StatusRunning
	exec.StartedAt = &started
	e.publish(exec)

	result, runErr := e.run(ctx, exec, def, req)
	if runErr != nil {
		return nil, e.fail(ctx, exec, runErr)
	}
	e.succeed(ctx, exec)
	result.Execution = exec
	return result, nil
}

func (e *EngineImpl) run(ctx context.Context, exec *Execution, def report.Definition, req ExecuteRequest) (*ExecutionResult, error) {
	plan, err := e.Planner.BuildPlan(def, req.RuntimeFilters, exec.OrganizationID)
	if err != nil {
		return nil, err
	}
	if req.ExportFormat != "" {
		return e.export(ctx, exec, def, plan, req.ExportFormat)
	}

	page, size := e.page(req.Page, req.PageSize)
	total, err := e.Reader.Count(ctx, plan)
	if err != nil {
		return nil, queryError{err}
	}
	rows, err := e.Reader.Query(ctx, plan.WithPage(size, (page-1)*size))
	if err != nil {
		return nil, queryError{err}
	}
	exec.RowCount = total
	return &ExecutionResult{
		Columns:   columnsOf(plan),
		Rows:      rows,
		TotalRows: total,
		Page:      page,
		PageSize:  size,
	}, nil
}

func (e *EngineImpl) export(ctx context.Context, exec *Execution, def report.Definition, plan *query.QueryPlan, format export.Format) (*ExecutionResult, error) {
	limit := e.Limits.ExportRows
	rows, err := e.Reader.Query(ctx, plan.WithPage(limit+1, 0))
	if err != nil {
		return nil, queryError{err}
	}
	if len(rows) > limit {
		var v errs.ValidationErrors
		v.Add("export_format", "export_too_large", "report has more than %d rows; add filters to export it", limit)
		return nil, v
	}

	now := e.Clock.Now()
	table := export.Table{Title: def.Name, GeneratedAt: now, Rows: make([][]any, 0, len(rows))}
	for _, p := range plan.Select {
		table.Columns = append(table.Columns, export.Column{Name: p.Name, Label: p.Label, FormatHint: p.FormatHint})
	}
	for _, row := range rows {
		cells := make([]any, len(plan.Select))
		for i, p := range plan.Select {
			cells[i] = row[p.Name]
		}
		table.Rows = append(table.Rows, cells)
	}

	var buf bytes.Buffer
	if err := e.Renderer.Render(&buf, table, format); err != nil {
		return nil, renderError{err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filename := export.Filename(utils.Slugify(def.Name), now, format)
	artifact := &Artifact{
		Ref:         fmt.Sprintf("executions/%s/%s", exec.ID.Hex(), filename),
		Filename:    filename,
		ContentType: format.ContentType(),
		Data:        buf.Bytes(),
	}
	exec.RowCount = int64(len(rows))
	exec.ResultArtifactRef = artifact.Ref
	return &ExecutionResult{Columns: columnsOf(plan), TotalRows: exec.RowCount, Artifact: artifact}, nil
}

type queryError struct{ error }

func (q queryError) Unwrap() error { return q.error }

type renderError struct{ error }

func (r renderError) Unwrap() error { return r.error }

// classify maps a run failure onto what is recorded and shown to the caller.
func classify(ctx context.Context, err error) (errs.ErrorKind, string, bool) {
	var (
		qe queryError
		re renderError
	)
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return errs.KindCancelled, "Execution was cancelled", true
	case errors.As(err, new(errs.ValidationErrors)):
		return errs.KindValidation, "Report definition or filters are invalid", false
	case errors.Is(err, errs.ErrAccessDenied):
		return errs.KindAccess, "Access denied", false
	case errors.As(err, &qe):
		return errs.KindQuery, "Report query failed", true
	case errors.As(err, &re):
		return errs.KindRender, "Report export failed", false
	}
	return errs.KindInternal, "Report execution failed", false
}

func (e *EngineImpl) fail(ctx context.Context, exec *Execution, cause error) error {
	kind, message, retryable := classify(ctx, cause)
	e.Logger.Error("execution failed",
		zap.String("execution_id", exec.ID.Hex()),
		zap.String("report_id", exec.ReportID),
		zap.String("organization_id", exec.OrganizationID),
		zap.String("kind", string(kind)),
		zap.Error(cause),
	)

	exec.Status = StatusFailed
	exec.ErrorKind = kind
	exec.ErrorMessage = message
	exec.Retryable = retryable
	e.finish(ctx, exec)

	return errs.NewExecutionError(exec.ID.Hex(), kind, message, retryable, cause)
}

func (e *EngineImpl) succeed(ctx context.Context, exec *Execution) {
	exec.Status = StatusSucceeded
	e.finish(ctx, exec)
	e.Logger.Info("execution succeeded",
		zap.String("execution_id", exec.ID.Hex()),
		zap.String("report_id", exec.ReportID),
		zap.Int64("row_count", exec.RowCount),
		zap.Int64("duration_ms", exec.DurationMs),
	)
}

func (e *EngineImpl) finish(ctx context.Context, exec *Execution) {
	done := e.Clock.Now()
	exec.CompletedAt = &done
	var took time.Duration
	if exec.StartedAt != nil {
		took = done.Sub(*exec.StartedAt)
	}
	exec.DurationMs = took.Milliseconds()

	// Record the outcome even when the run itself was cancelled
	if err := e.Repo.Finish(context.WithoutCancel(ctx), exec); err != nil {
		e.Logger.Error("failed to record execution outcome", zap.String("execution_id", exec.ID.Hex()), zap.Error(err))
	}
	metrics.ObserveExecution(string(exec.Status), string(exec.ErrorKind), exec.ExportFormat != "", took)
	e.publish(exec)
}

func (e *EngineImpl) publish(exec *Execution) {
	if e.Publisher != nil {
		e.Publisher.Publish(*exec)
	}
}

func (e *EngineImpl) page(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = e.Limits.DefaultPageSize
	}
	if size > e.Limits.MaxPageSize {
		size = e.Limits.MaxPageSize
	}
	return page, size
}

func (e *EngineImpl) Get(ctx context.Context, id string, caller tenant.Caller) (*Execution, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errs.ErrNotFound
	}
	exec, err := e.Repo.FindByID(ctx, oid, caller.OrganizationID)
	if err != nil {
		return nil, err
	}
	// Runs of reports the caller can no longer see are hidden too
	if _, err := e.Reports.Get(ctx, exec.ReportID, caller); err != nil {
		return nil, err
	}
	return exec, nil
}

func (e *EngineImpl) ListByReport(ctx context.Context, reportID string, caller tenant.Caller, limit int) ([]Execution, error) {
	if _, err := e.Reports.Get(ctx, reportID, caller); err != nil {
		return nil, err
	}
	return e.Repo.ListByReport(ctx, reportID, caller.OrganizationID, listLimit(limit))
}

func (e *EngineImpl) ListBySchedule(ctx context.Context, scheduleID, org string, limit int) ([]Execution, error) {
	return e.Repo.ListBySchedule(ctx, scheduleID, org, listLimit(limit))
}

func listLimit(limit int) int64 {
	if limit < 1 || limit > 500 {
		return defaultListLimit
	}
	return int64(limit)
}

func columnsOf(plan *query.QueryPlan) []ResultColumn {
	cols := make([]ResultColumn, 0, len(plan.Select))
	for _, p := range plan.Select {
		cols = append(cols, ResultColumn{Name: p.Name, Label: p.Label, Type: p.Type, FormatHint: p.FormatHint})
	}
	return cols
}
