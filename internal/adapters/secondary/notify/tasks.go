// Package notify delivers the "ticket called" hook. Calls are enqueued as
// asynq tasks and announced by a worker, or logged directly when no task
// queue is configured.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/navbat/queue-backend/internal/core/domain"
)

// Task types
const (
	TypeTicketCalled = "ticket:called"
)

// Queue names and their worker priorities.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

const (
	ticketCalledMaxRetry = 3
	ticketCalledTimeout  = 30 * time.Second
)

// NewTicketCalledTask builds the task announcing a called ticket.
func NewTicketCalledTask(payload domain.TicketCalled) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", TypeTicketCalled, err)
	}
	return asynq.NewTask(TypeTicketCalled, data,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(ticketCalledMaxRetry),
		asynq.Timeout(ticketCalledTimeout),
	), nil
}

// ParseTicketCalled decodes the payload of a TypeTicketCalled task.
func ParseTicketCalled(t *asynq.Task) (domain.TicketCalled, error) {
	var payload domain.TicketCalled
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", TypeTicketCalled, err)
	}
	if payload.TicketNumber == "" || payload.OrganizationID == "" {
		return payload, fmt.Errorf("%s payload is missing ticketNumber or organizationId: %w", TypeTicketCalled, asynq.SkipRetry)
	}
	return payload, nil
}
