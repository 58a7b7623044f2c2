package schedule

import (
	"context"
	"errors"
	"fmt"

	"go-reports/internal/common/clock"
	"go-reports/internal/common/errs"
	"go-reports/internal/features/execution"
	"go-reports/internal/features/notification"
	"go-reports/internal/features/tenant"

	"go.uber.org/zap"
)

// Runner executes one schedule as its owner and delivers the export.
type Runner struct {
	Engine execution.Engine
	Sink   notification.Sink
	Clock  clock.Clock
	Logger *zap.Logger
}

func NewRunner(engine execution.Engine, sink notification.Sink, clk clock.Clock, logger *zap.Logger) *Runner {
	return &Runner{Engine: engine, Sink: sink, Clock: clk, Logger: logger.Named("schedule_runner")}
}

// Run returns the record to store on the schedule. A delivery failure does
// not fail the run; it is reported in RunRecord.DeliveryError.
func (r *Runner) Run(ctx context.Context, s *Schedule) (RunRecord, error) {
	caller := tenant.Caller{UserID: s.OwnerUserID, OrganizationID: s.OrganizationID}
	ctx = tenant.WithCaller(ctx, caller)
	rec := RunRecord{RunAt: r.Clock.Now()}

	result, err := r.Engine.Execute(ctx, execution.ExecuteRequest{
		ReportID:       s.ReportID,
		RuntimeFilters: s.FiltersPreset,
		ExportFormat:   s.ExportFormat,
		ScheduleID:     s.ID.Hex(),
	}, caller)
	if err != nil {
		rec.Status = execution.StatusFailed
		var execErr *errs.ExecutionError
		if errors.As(err, &execErr) {
			rec.ExecutionID = execErr.ExecutionID
		}
		return rec, err
	}

	rec.ExecutionID = result.Execution.ID.Hex()
	rec.Status = result.Execution.Status

	msg := notification.Message{
		OrganizationID: s.OrganizationID,
		ScheduleID:     s.ID.Hex(),
		ExecutionID:    rec.ExecutionID,
		Recipients:     s.RecipientEmails,
		Subject:        s.Name,
		Body:           fmt.Sprintf("The scheduled report %q ran at %s with %d rows.", s.Name, rec.RunAt.Format("2006-01-02 15:04 MST"), result.TotalRows),
	}
	if a := result.Artifact; a != nil {
		msg.Attachment = &notification.Attachment{Filename: a.Filename, ContentType: a.ContentType, Data: a.Data}
	}
	if err := r.Sink.Send(ctx, msg); err != nil {
		r.Logger.Warn("report delivery failed",
			zap.String("schedule_id", s.ID.Hex()),
			zap.String("execution_id", rec.ExecutionID),
			zap.Error(err),
		)
		rec.DeliveryError = err.Error()
	}
	return rec, nil
}
