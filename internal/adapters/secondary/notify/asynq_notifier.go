package notify

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/navbat/queue-backend/internal/core/domain"
	"github.com/navbat/queue-backend/internal/core/ports"
)

// AsynqNotifier enqueues a task for every called ticket.
type AsynqNotifier struct {
	client *asynq.Client
	logger *slog.Logger
}

var _ ports.Notifier = (*AsynqNotifier)(nil)

// NewAsynqNotifier creates a notifier backed by an asynq client.
func NewAsynqNotifier(client *asynq.Client, logger *slog.Logger) *AsynqNotifier {
	return &AsynqNotifier{
		client: client,
		logger: logger.With("component", "asynq_notifier"),
	}
}

// TicketCalled enqueues the announcement. Failures are logged.
func (n *AsynqNotifier) TicketCalled(ctx context.Context, payload domain.TicketCalled) {
	task, err := NewTicketCalledTask(payload)
	if err != nil {
		n.logger.Error("failed to build ticket called task", "ticket_id", payload.TicketID, "error", err)
		return
	}

	info, err := n.client.EnqueueContext(ctx, task)
	if err != nil {
		n.logger.Error("failed to enqueue ticket called task",
			"ticket_id", payload.TicketID,
			"org_id", payload.OrganizationID,
			"error", err,
		)
		return
	}

	n.logger.Debug("ticket called task enqueued",
		"task_id", info.ID,
		"queue", info.Queue,
		"ticket_number", payload.TicketNumber,
	)
}

// Close releases the underlying client.
func (n *AsynqNotifier) Close() error {
	return n.client.Close()
}
