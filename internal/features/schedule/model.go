// Package schedule runs reports on a timetable and mails the exports.
package schedule

import (
	"time"

	"go-reports/internal/features/execution"
	"go-reports/internal/features/export"
	"go-reports/internal/features/report"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ScheduleType string

const (
	TypeDaily      ScheduleType = "daily"
	TypeWeekly     ScheduleType = "weekly"
	TypeMonthly    ScheduleType = "monthly"
	TypeCustomCron ScheduleType = "custom_cron"
)

// Config holds the fields relevant to the schedule type. Weekday is a
// pointer because Sunday is 0.
type Config struct {
	TimeOfDay      string `json:"time_of_day,omitempty" bson:"time_of_day,omitempty"` // HH:MM
	Weekday        *int   `json:"weekday,omitempty" bson:"weekday,omitempty"`         // 0 = Sunday
	DayOfMonth     int    `json:"day_of_month,omitempty" bson:"day_of_month,omitempty"`
	CronExpression string `json:"cron_expression,omitempty" bson:"cron_expression,omitempty"`
	Timezone       string `json:"timezone,omitempty" bson:"timezone,omitempty"` // IANA name, UTC when empty
}

type Schedule struct {
	ID                primitive.ObjectID    `json:"id" bson:"_id,omitempty"`
	ReportID          string                `json:"report_id" bson:"report_id"`
	OrganizationID    string                `json:"organization_id" bson:"organization_id"`
	OwnerUserID       string                `json:"owner_user_id" bson:"owner_user_id"`
	Name              string                `json:"name" bson:"name"`
	ScheduleType      ScheduleType          `json:"schedule_type" bson:"schedule_type"`
	ScheduleConfig    Config                `json:"schedule_config" bson:"schedule_config"`
	FiltersPreset     []report.FilterClause `json:"filters_preset" bson:"filters_preset"`
	RecipientEmails   []string              `json:"recipient_emails" bson:"recipient_emails"`
	ExportFormat      export.Format         `json:"export_format" bson:"export_format"`
	IsActive          bool                  `json:"is_active" bson:"is_active"`
	LastExecutionID   string                `json:"last_execution_id,omitempty" bson:"last_execution_id,omitempty"`
	LastRunAt         *time.Time            `json:"last_run_at,omitempty" bson:"last_run_at,omitempty"`
	LastStatus        execution.Status      `json:"last_status,omitempty" bson:"last_status,omitempty"`
	LastDeliveryError string                `json:"last_delivery_error,omitempty" bson:"last_delivery_error,omitempty"`
	NextRunAt         *time.Time            `json:"next_run_at,omitempty" bson:"next_run_at,omitempty"`
	ClaimedBy         string                `json:"-" bson:"claimed_by,omitempty"`
	ClaimedUntil      *time.Time            `json:"-" bson:"claimed_until,omitempty"`
	CreatedAt         time.Time             `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at" bson:"updated_at"`
}

// ScheduleRequest is the body of create and update calls. ReportID is only
// read on create.
type ScheduleRequest struct {
	ReportID        string                `json:"report_id"`
	Name            string                `json:"name" validate:"required,max=200"`
	ScheduleType    ScheduleType          `json:"schedule_type" validate:"required,oneof=daily weekly monthly custom_cron"`
	ScheduleConfig  Config                `json:"schedule_config"`
	FiltersPreset   []report.FilterClause `json:"filters_preset"`
	RecipientEmails []string              `json:"recipient_emails" validate:"required,min=1,max=50,dive,email"`
	ExportFormat    export.Format         `json:"export_format" validate:"required,oneof=csv xlsx pdf"`
	IsActive        *bool                 `json:"is_active"`
}

// RunRecord is the outcome of one run written back onto the schedule.
type RunRecord struct {
	ExecutionID   string
	RunAt         time.Time
	Status        execution.Status
	DeliveryError string
	// NextRunAt is left untouched when nil. Otherwise it is written only
	// while the stored schedule still matches Slot and SeenUpdatedAt, so an
	// edit made during the run wins.
	NextRunAt     *time.Time
	Slot          *time.Time
	SeenUpdatedAt time.Time
}
