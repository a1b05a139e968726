package domain

import "time"

// TicketCalled is the payload of the "ticket called" hook that drives
// SMS or voice announcements.
type TicketCalled struct {
	TicketID       string `json:"ticketId"`
	TicketNumber   string `json:"ticketNumber"`
	OrganizationID string `json:"organizationId"`
}

// NewTicketCalled builds the hook payload from a called ticket.
func NewTicketCalled(t *Ticket) TicketCalled {
	return TicketCalled{
		TicketID:       t.ID,
		TicketNumber:   t.Number,
		OrganizationID: t.OrganizationID,
	}
}

// TicketSnapshot matches the API response shape for tickets.
type TicketSnapshot struct {
	ID                 string     `json:"id"`
	OrganizationID     string     `json:"organizationId"`
	ServiceID          *string    `json:"serviceId"`
	UserID             *string    `json:"userId"`
	UserPhone          *string    `json:"userPhone"`
	Number             string     `json:"number"`
	Position           int        `json:"position"`
	Status             string     `json:"status"`
	EntryTime          string     `json:"entryTime"`
	QueuedAt           string     `json:"queuedAt"`
	EstimatedStartTime *string    `json:"estimatedStartTime"`
	AppointmentTime    *string    `json:"appointmentTime"`
	CalledAt           *string    `json:"calledAt"`
	ClosedAt           *string    `json:"closedAt"`
	Coming             bool       `json:"coming"`
	Evaluated          bool       `json:"evaluated"`
	Logs               []QueueLog `json:"logs"`
}

// NewTicketSnapshot builds a ticket snapshot from a domain ticket. Only
// WAITING live tickets carry an estimated start time.
func NewTicketSnapshot(ticket *Ticket) TicketSnapshot {
	var eta *string
	if ticket.InLiveQueue() && !ticket.EstimatedStartTime.IsZero() {
		eta = formatTime(&ticket.EstimatedStartTime)
	}

	logs := ticket.Logs
	if logs == nil {
		logs = []QueueLog{}
	}

	return TicketSnapshot{
		ID:                 ticket.ID,
		OrganizationID:     ticket.OrganizationID,
		ServiceID:          optionalString(ticket.ServiceID),
		UserID:             optionalString(ticket.UserID),
		UserPhone:          optionalString(ticket.UserPhone),
		Number:             ticket.Number,
		Position:           ticket.DisplayPosition(),
		Status:             string(ticket.Status),
		EntryTime:          ticket.EntryTime.UTC().Format(time.RFC3339Nano),
		QueuedAt:           ticket.QueuedAt.UTC().Format(time.RFC3339Nano),
		EstimatedStartTime: eta,
		AppointmentTime:    formatTime(ticket.AppointmentTime),
		CalledAt:           formatTime(ticket.CalledAt),
		ClosedAt:           formatTime(ticket.ClosedAt),
		Coming:             ticket.IsComing(),
		Evaluated:          ticket.Evaluated,
		Logs:               logs,
	}
}

func formatTime(v *time.Time) *string {
	if v == nil {
		return nil
	}
	value := v.UTC().Format(time.RFC3339Nano)
	return &value
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
