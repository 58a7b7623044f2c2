package notification

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DeliveryStatus string

const (
	DeliveryQueued DeliveryStatus = "queued"
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one report delivery to a set of recipients.
type Message struct {
	OrganizationID string
	ScheduleID     string
	ExecutionID    string
	Recipients     []string
	Subject        string
	Body           string
	Attachment     *Attachment
}

// Delivery is the persisted record of one send attempt.
type Delivery struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrganizationID string             `json:"organization_id" bson:"organization_id"`
	ScheduleID     string             `json:"schedule_id,omitempty" bson:"schedule_id,omitempty"`
	ExecutionID    string             `json:"execution_id,omitempty" bson:"execution_id,omitempty"`
	From           string             `json:"from" bson:"from"`
	To             []string           `json:"to" bson:"to"`
	Subject        string             `json:"subject" bson:"subject"`
	AttachmentName string             `json:"attachment_name,omitempty" bson:"attachment_name,omitempty"`
	Status         DeliveryStatus     `json:"status" bson:"status"`
	ErrorMessage   string             `json:"error_message,omitempty" bson:"error_message,omitempty"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	SentAt         *time.Time         `json:"sent_at,omitempty" bson:"sent_at,omitempty"`
}
