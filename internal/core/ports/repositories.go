package ports

import (
	"context"

	"github.com/navbat/queue-backend/internal/core/domain"
)

// TicketRepository is the queue store. Writes are only issued by the queue
// service while it holds the organization lock.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	ListByOrganization(ctx context.Context, orgID string, filter domain.TicketFilter) ([]*domain.Ticket, error)
	ListByHolder(ctx context.Context, holderID string, activeOnly bool) ([]*domain.Ticket, error)
	// NextNumber returns the next value of the organization's counter for
	// the given prefix, starting at 1.
	NextNumber(ctx context.Context, orgID, prefix string) (int, error)
}

// OrganizationRepository stores per-organization queue settings.
type OrganizationRepository interface {
	// Get returns ErrOrganizationNotFound when no settings were stored.
	Get(ctx context.Context, id string) (*domain.Organization, error)
	Upsert(ctx context.Context, org *domain.Organization) (*domain.Organization, error)
}

// TransactionManager defines the port for running atomic operations.
type TransactionManager interface {
	// WithOrganizationLock runs fn in a single transaction while holding
	// the organization's exclusive lock. Writes made through ctx are
	// committed only if fn returns nil.
	WithOrganizationLock(ctx context.Context, orgID string, fn func(ctx context.Context) error) error
}
