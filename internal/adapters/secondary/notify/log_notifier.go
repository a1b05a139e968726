package notify

import (
	"context"
	"log/slog"

	"github.com/navbat/queue-backend/internal/core/domain"
	"github.com/navbat/queue-backend/internal/core/ports"
)

// Announcer delivers a called-ticket announcement to the customer or the
// waiting-room display.
type Announcer interface {
	Announce(ctx context.Context, payload domain.TicketCalled) error
}

// LogNotifier is a secondary adapter that logs announcements instead of
// sending SMS or voice messages. It implements both ports.Notifier and
// Announcer.
type LogNotifier struct {
	logger *slog.Logger
}

var (
	_ ports.Notifier = (*LogNotifier)(nil)
	_ Announcer      = (*LogNotifier)(nil)
)

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.With("component", "log_notifier"),
	}
}

// TicketCalled logs the announcement in-process.
func (n *LogNotifier) TicketCalled(ctx context.Context, payload domain.TicketCalled) {
	_ = n.Announce(ctx, payload)
}

// Announce logs the mock SMS/voice announcement.
func (n *LogNotifier) Announce(ctx context.Context, payload domain.TicketCalled) error {
	n.logger.InfoContext(ctx, "mock announcement sent",
		"ticket_id", payload.TicketID,
		"ticket_number", payload.TicketNumber,
		"org_id", payload.OrganizationID,
	)
	return nil
}
