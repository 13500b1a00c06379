// ABOUTME: Wire format for realtime events pushed to connected clients
// ABOUTME: Events are transient; they are never persisted by the gateway

package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Event is a single change notification scoped to one organization.
// EventID is the deduplication key; clients drop repeats within their
// recency window.
type Event struct {
	EventID   string            `json:"event_id"`
	OrgID     uuid.UUID         `json:"org_id"`
	Type      string            `json:"type"`
	EntityID  uuid.UUID         `json:"entity_id"`
	UpdatedAt time.Time         `json:"updated_at"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// NewEvent builds an event with a fresh ID and the current timestamp.
func NewEvent(orgID uuid.UUID, eventType string, entityID uuid.UUID, payload map[string]string) Event {
	return Event{
		EventID:   uuid.New().String(),
		OrgID:     orgID,
		Type:      eventType,
		EntityID:  entityID,
		UpdatedAt: time.Now().UTC(),
		Payload:   payload,
	}
}

// OrgChannel returns the channel name every member connection is bound to.
func OrgChannel(orgID uuid.UUID) string {
	return "org:" + orgID.String()
}
