package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ContextKey string

const (
	CallerKey ContextKey = "caller"
)

type AuditAction string

const (
	AuditActionCreate   AuditAction = "CREATE"
	AuditActionUpdate   AuditAction = "UPDATE"
	AuditActionDelete   AuditAction = "DELETE"
	AuditActionShare    AuditAction = "SHARE"
	AuditActionClone    AuditAction = "CLONE"
	AuditActionSchedule AuditAction = "SCHEDULE"
)

type Change struct {
	Old interface{} `bson:"old" json:"old"`
	New interface{} `bson:"new" json:"new"`
}

type AuditLog struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrganizationID string             `bson:"organization_id,omitempty" json:"organization_id,omitempty"`
	Action         AuditAction        `bson:"action" json:"action"`
	Module         string             `bson:"module" json:"module"`       // reports, report_schedules
	RecordID       string             `bson:"record_id" json:"record_id"` // The ID of the record being modified
	ActorID        string             `bson:"actor_id" json:"actor_id"`
	Changes        map[string]Change  `bson:"changes,omitempty" json:"changes,omitempty"`
	Timestamp      time.Time          `bson:"timestamp" json:"timestamp"`
}

// Log is one application log line persisted by the logger's DB core.
type Log struct {
	Message        string    `bson:"message" json:"message"`
	Caller         string    `bson:"caller,omitempty" json:"caller,omitempty"`
	OrganizationID string    `bson:"organization_id,omitempty" json:"organization_id,omitempty"`
	ExecutionID    string    `bson:"execution_id,omitempty" json:"execution_id,omitempty"`
	LogLevelId     int       `bson:"log_level_id" json:"log_level_id"`
	AppId          string    `bson:"app_id" json:"app_id"`
	CreatedOnUtc   time.Time `bson:"created_on_utc" json:"created_on_utc"`
}
