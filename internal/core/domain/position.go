package domain

import (
	"sort"
	"time"
)

// ServiceDuration converts an organization's service minutes into a
// duration, falling back to DefaultServiceMinutes.
func ServiceDuration(minutes int) time.Duration {
	if minutes <= 0 {
		minutes = DefaultServiceMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// SortByQueueOrder orders tickets by queuedAt, then id.
func SortByQueueOrder(tickets []*Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		if !tickets[i].QueuedAt.Equal(tickets[j].QueuedAt) {
			return tickets[i].QueuedAt.Before(tickets[j].QueuedAt)
		}
		return tickets[i].ID < tickets[j].ID
	})
}

// RecomputePositions refreshes Position and EstimatedStartTime of the
// WAITING live tickets in one organization's ticket set. Appointment and
// non-WAITING tickets are left untouched. It returns the tickets whose
// derived fields changed; a second call on the same input returns none.
func RecomputePositions(tickets []*Ticket, serviceMinutes int) []*Ticket {
	live := make([]*Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.InLiveQueue() {
			live = append(live, t)
		}
	}
	SortByQueueOrder(live)

	step := ServiceDuration(serviceMinutes)
	var changed []*Ticket
	for i, t := range live {
		eta := t.QueuedAt.Add(time.Duration(i) * step)
		if t.Position == i && t.EstimatedStartTime.Equal(eta) {
			continue
		}
		t.Position = i
		t.EstimatedStartTime = eta
		changed = append(changed, t)
	}
	return changed
}

// HeadOfQueue returns the WAITING live ticket at position 0, or nil.
func HeadOfQueue(tickets []*Ticket) *Ticket {
	var head *Ticket
	for _, t := range tickets {
		if !t.InLiveQueue() {
			continue
		}
		if head == nil || t.QueuedAt.Before(head.QueuedAt) ||
			(t.QueuedAt.Equal(head.QueuedAt) && t.ID < head.ID) {
			head = t
		}
	}
	return head
}
