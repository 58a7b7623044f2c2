// Package execution runs report definitions: previews, paged executions and
// file exports, with a persisted record of every non-preview run.
package execution

import (
	"time"

	"go-reports/internal/common/errs"
	"go-reports/internal/features/export"
	"go-reports/internal/features/query"
	"go-reports/internal/features/registry"
	"go-reports/internal/features/report"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

type Execution struct {
	ID                primitive.ObjectID    `json:"id" bson:"_id,omitempty"`
	ReportID          string                `json:"report_id" bson:"report_id"`
	ReportVersion     int                   `json:"report_version" bson:"report_version"`
	OrganizationID    string                `json:"organization_id" bson:"organization_id"`
	TriggeredByUserID string                `json:"triggered_by_user_id,omitempty" bson:"triggered_by_user_id,omitempty"`
	ScheduleID        string                `json:"schedule_id,omitempty" bson:"schedule_id,omitempty"`
	FiltersUsed       []report.FilterClause `json:"filters_used" bson:"filters_used"`
	ExportFormat      export.Format         `json:"export_format,omitempty" bson:"export_format,omitempty"`
	Status            Status                `json:"status" bson:"status"`
	StartedAt         *time.Time            `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	DurationMs        int64                 `json:"duration_ms" bson:"duration_ms"`
	RowCount          int64                 `json:"row_count" bson:"row_count"`
	ErrorMessage      string                `json:"error_message,omitempty" bson:"error_message,omitempty"`
	ErrorKind         errs.ErrorKind        `json:"error_kind,omitempty" bson:"error_kind,omitempty"`
	Retryable         bool                  `json:"retryable" bson:"retryable"`
	ResultArtifactRef string                `json:"result_artifact_ref,omitempty" bson:"result_artifact_ref,omitempty"`
	CreatedAt         time.Time             `json:"created_at" bson:"created_at"`
}

type ResultColumn struct {
	Name       string             `json:"name"`
	Label      string             `json:"label"`
	Type       registry.FieldType `json:"type"`
	FormatHint string             `json:"format_hint,omitempty"`
}

// PreviewRequest runs either a stored report or an unsaved definition.
type PreviewRequest struct {
	ReportID       string                `json:"report_id,omitempty"`
	Definition     *report.Definition    `json:"definition,omitempty"`
	RuntimeFilters []report.FilterClause `json:"runtime_filters,omitempty"`
}

type PreviewResult struct {
	Columns   []ResultColumn `json:"columns"`
	Rows      []query.Row    `json:"rows"`
	Truncated bool           `json:"truncated"`
}

type ExecuteRequest struct {
	ReportID       string                `json:"-"`
	RuntimeFilters []report.FilterClause `json:"runtime_filters,omitempty"`
	ExportFormat   export.Format         `json:"export_format,omitempty"`
	Page           int                   `json:"page,omitempty"`
	PageSize       int                   `json:"page_size,omitempty"`
	// ScheduleID is set by the scheduler; the run is then not attributed to a user.
	ScheduleID string `json:"-"`
}

// Artifact is a rendered export held in memory for download or delivery.
type Artifact struct {
	Ref         string `json:"ref"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

type ExecutionResult struct {
	Execution *Execution     `json:"execution"`
	Columns   []ResultColumn `json:"columns,omitempty"`
	Rows      []query.Row    `json:"rows,omitempty"`
	TotalRows int64          `json:"total_rows"`
	Page      int            `json:"page,omitempty"`
	PageSize  int            `json:"page_size,omitempty"`
	Artifact  *Artifact      `json:"artifact,omitempty"`
}
