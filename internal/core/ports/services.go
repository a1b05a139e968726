package ports

import (
	"context"
	"time"

	"github.com/navbat/queue-backend/internal/core/domain"
)

// JoinQueueParams defines the required input for joining a queue.
type JoinQueueParams struct {
	OrganizationID  string
	ServiceID       *string
	UserID          string
	UserPhone       string
	AppointmentTime *time.Time
}

// TicketActionParams defines the input for a lifecycle action on a ticket.
type TicketActionParams struct {
	TicketID string
	ActorID  string
	Reason   string
}

// CallNextParams defines the input for calling the head of the live queue.
type CallNextParams struct {
	OrganizationID string
	ActorID        string
}

// ListMineParams defines the input for listing a holder's tickets.
type ListMineParams struct {
	HolderID   string
	ActiveOnly bool
}

// UpdateSettingsParams defines the input for changing queue settings.
type UpdateSettingsParams struct {
	OrganizationID string
	ActorID        string
	Settings       domain.OrganizationSettingsParams
}

// QueueReader exposes read-only snapshots of the queue store.
type QueueReader interface {
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)
	GetByOrganization(ctx context.Context, orgID string, filter domain.TicketFilter) ([]*domain.Ticket, error)
	GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error)
}

// TicketHolderService is what a customer may do with their own ticket.
type TicketHolderService interface {
	Join(ctx context.Context, params JoinQueueParams) (*domain.Ticket, error)
	Cancel(ctx context.Context, params TicketActionParams) (*domain.Ticket, error)
	SwapToNext(ctx context.Context, params TicketActionParams) (*domain.Ticket, error)
	MarkComing(ctx context.Context, params TicketActionParams) (*domain.Ticket, error)
	Evaluate(ctx context.Context, params TicketActionParams) (*domain.Ticket, error)
	ListMine(ctx context.Context, params ListMineParams) ([]*domain.Ticket, error)
}

// StaffService is what employees and owners may do with an organization's queue.
type StaffService interface {
	Call(ctx context.Context, params TicketActionParams) (*domain.Ticket, error)
	CallNext(ctx context.Context, params CallNextParams) (*domain.Ticket, error)
	Recall(ctx context.Context, params TicketActionParams) (*domain.Ticket, error)
	Finish(ctx context.Context, params TicketActionParams) (*domain.Ticket, error)
	Skip(ctx context.Context, params TicketActionParams) (*domain.Ticket, error)
	Requeue(ctx context.Context, params TicketActionParams) (*domain.Ticket, error)
	UpdateSettings(ctx context.Context, params UpdateSettingsParams) (*domain.Organization, error)
	GetStats(ctx context.Context, orgID string) (*domain.QueueStats, error)
}

// QueueService defines the core business operations for managing queues.
type QueueService interface {
	QueueReader
	TicketHolderService
	StaffService
	Shutdown()
}

// Notifier defines the port for the "ticket called" hook. Implementations
// must not block the caller for long; failures are logged, not returned.
type Notifier interface {
	TicketCalled(ctx context.Context, payload domain.TicketCalled)
}

// EventBroadcaster defines the port for publishing queue change events.
type EventBroadcaster interface {
	Broadcast(event domain.Event) error
}

// QueueMetrics records queue activity.
type QueueMetrics interface {
	TicketTransitioned(action domain.TicketAction)
	QueueDepth(orgID string, waiting int)
}
