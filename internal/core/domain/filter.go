package domain

import "strings"

// QueueView selects between the live queue and the appointment book.
type QueueView string

const (
	ViewAll          QueueView = ""
	ViewLive         QueueView = "live"
	ViewAppointments QueueView = "appointments"
)

func (v QueueView) IsValid() bool {
	switch v {
	case ViewAll, ViewLive, ViewAppointments:
		return true
	}
	return false
}

// TicketFilter narrows an organization snapshot. The zero value matches
// every ticket.
type TicketFilter struct {
	View     QueueView
	Statuses []TicketStatus
}

// ActiveFilter matches tickets that still hold a place.
func ActiveFilter() TicketFilter {
	return TicketFilter{Statuses: []TicketStatus{StatusWaiting, StatusCalled}}
}

// LiveWaitingFilter matches the tickets that are numbered by the calculator.
func LiveWaitingFilter() TicketFilter {
	return TicketFilter{View: ViewLive, Statuses: []TicketStatus{StatusWaiting}}
}

// Matches reports whether t passes the filter.
func (f TicketFilter) Matches(t *Ticket) bool {
	switch f.View {
	case ViewLive:
		if !t.IsLive() {
			return false
		}
	case ViewAppointments:
		if t.IsLive() {
			return false
		}
	}

	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

// ParseStatuses parses a comma separated status list such as
// "WAITING,CALLED". Unknown values are returned as invalid.
func ParseStatuses(raw string) ([]TicketStatus, []string) {
	var statuses []TicketStatus
	var invalid []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		s := TicketStatus(part)
		if !s.IsValid() {
			invalid = append(invalid, part)
			continue
		}
		statuses = append(statuses, s)
	}
	return statuses, invalid
}
