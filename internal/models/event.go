package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// EventType names an entry in a listing or trade offer audit log.
type EventType string

const (
	EventCreated   EventType = "CREATED"
	EventUpdated   EventType = "UPDATED"
	EventPublished EventType = "PUBLISHED"
	EventArchived  EventType = "ARCHIVED"
	EventSold      EventType = "SOLD"

	EventAccepted  EventType = "ACCEPTED"
	EventRejected  EventType = "REJECTED"
	EventCancelled EventType = "CANCELLED"
	EventExpired   EventType = "EXPIRED"

	EventHandoverRequested EventType = "HANDOVER_REQUESTED"
	EventHandoverVerified  EventType = "HANDOVER_VERIFIED"
	EventHandoverRejected  EventType = "HANDOVER_REJECTED"

	EventReported       EventType = "REPORTED"
	EventReportResolved EventType = "REPORT_RESOLVED"
	EventReportRejected EventType = "REPORT_REJECTED"
)

// Event is an immutable audit log entry. EntityID is the listing or trade
// offer the log belongs to.
type Event struct {
	ID          string         `db:"id" json:"id"`
	EntityID    string         `db:"entity_id" json:"entityId"`
	EventType   EventType      `db:"event_type" json:"eventType"`
	ActorUserID string         `db:"actor_user_id" json:"actorUserId"`
	Metadata    types.JSONText `db:"metadata" json:"metadata"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
}
