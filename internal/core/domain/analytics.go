package domain

import "time"

type StatusCount struct {
	Status TicketStatus
	Count  int64
}

// QueueStats summarizes one organization's tickets for the dashboard.
type QueueStats struct {
	OrganizationID        string
	StatusCounts          []StatusCount
	LiveWaiting           int
	AppointmentsWaiting   int
	AverageWaitMinutes    float64
	AverageServiceMinutes float64
	ServiceMinutes        int
}

var statsOrder = []TicketStatus{
	StatusWaiting,
	StatusCalled,
	StatusServed,
	StatusSkipped,
	StatusCancelled,
}

// ComputeQueueStats aggregates tickets of one organization. Wait is entry
// to the latest call; service is call to close, for SERVED tickets only.
func ComputeQueueStats(organizationID string, tickets []*Ticket, serviceMinutes int) *QueueStats {
	counts := make(map[TicketStatus]int64, len(statsOrder))
	stats := &QueueStats{
		OrganizationID: organizationID,
		ServiceMinutes: serviceMinutes,
	}

	var waitTotal, serviceTotal time.Duration
	var waitN, serviceN int
	for _, t := range tickets {
		counts[t.Status]++
		if t.Status == StatusWaiting {
			if t.IsLive() {
				stats.LiveWaiting++
			} else {
				stats.AppointmentsWaiting++
			}
		}
		if t.CalledAt != nil && t.Status != StatusWaiting {
			waitTotal += t.CalledAt.Sub(t.EntryTime)
			waitN++
			if t.Status == StatusServed && t.ClosedAt != nil {
				serviceTotal += t.ClosedAt.Sub(*t.CalledAt)
				serviceN++
			}
		}
	}

	for _, s := range statsOrder {
		stats.StatusCounts = append(stats.StatusCounts, StatusCount{Status: s, Count: counts[s]})
	}
	if waitN > 0 {
		stats.AverageWaitMinutes = waitTotal.Minutes() / float64(waitN)
	}
	if serviceN > 0 {
		stats.AverageServiceMinutes = serviceTotal.Minutes() / float64(serviceN)
	}
	return stats
}
