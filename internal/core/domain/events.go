package domain

import "time"

// EventType defines the type of real-time event.
type EventType string

const (
	// EventQueueChanged carries no ticket data; subscribers re-fetch.
	EventQueueChanged EventType = "QUEUE_CHANGED"
	EventTicketCalled EventType = "TICKET_CALLED"
)

// Event is the payload sent over WebSocket and the cross-instance bus.
type Event struct {
	Type           EventType   `json:"type"`
	OrganizationID string      `json:"organizationId"` // Used for routing to organization "rooms"
	Payload        interface{} `json:"payload,omitempty"`
	OccurredAt     time.Time   `json:"occurredAt"`
}

// NewQueueChangedEvent builds the organization-wide change notification.
func NewQueueChangedEvent(organizationID string, now time.Time) Event {
	return Event{
		Type:           EventQueueChanged,
		OrganizationID: organizationID,
		OccurredAt:     now,
	}
}

// NewTicketCalledEvent builds the event shown on waiting-room displays.
func NewTicketCalledEvent(t *Ticket, now time.Time) Event {
	return Event{
		Type:           EventTicketCalled,
		OrganizationID: t.OrganizationID,
		Payload:        NewTicketCalled(t),
		OccurredAt:     now,
	}
}
