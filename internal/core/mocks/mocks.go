package mocks

import (
	"context"

	"github.com/navbat/queue-backend/internal/core/domain"
	"github.com/navbat/queue-backend/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockTicketRepository is a mock implementation of ports.TicketRepository
type MockTicketRepository struct {
	mock.Mock
}

var _ ports.TicketRepository = (*MockTicketRepository)(nil)

func NewMockTicketRepository() *MockTicketRepository {
	return &MockTicketRepository{}
}

func (m *MockTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) ListByOrganization(ctx context.Context, orgID string, filter domain.TicketFilter) ([]*domain.Ticket, error) {
	args := m.Called(ctx, orgID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) ListByHolder(ctx context.Context, holderID string, activeOnly bool) ([]*domain.Ticket, error) {
	args := m.Called(ctx, holderID, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) NextNumber(ctx context.Context, orgID, prefix string) (int, error) {
	args := m.Called(ctx, orgID, prefix)
	return args.Int(0), args.Error(1)
}

// MockOrganizationRepository is a mock implementation of ports.OrganizationRepository
type MockOrganizationRepository struct {
	mock.Mock
}

var _ ports.OrganizationRepository = (*MockOrganizationRepository)(nil)

func NewMockOrganizationRepository() *MockOrganizationRepository {
	return &MockOrganizationRepository{}
}

func (m *MockOrganizationRepository) Get(ctx context.Context, id string) (*domain.Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Organization), args.Error(1)
}

func (m *MockOrganizationRepository) Upsert(ctx context.Context, org *domain.Organization) (*domain.Organization, error) {
	args := m.Called(ctx, org)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Organization), args.Error(1)
}

// MockTransactionManager runs fn directly with the caller's context after
// recording the call.
type MockTransactionManager struct {
	mock.Mock
}

var _ ports.TransactionManager = (*MockTransactionManager)(nil)

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithOrganizationLock(ctx context.Context, orgID string, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, orgID)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}

// MockQueueService is a mock implementation of ports.QueueService
type MockQueueService struct {
	mock.Mock
}

var _ ports.QueueService = (*MockQueueService)(nil)

func NewMockQueueService() *MockQueueService {
	return &MockQueueService{}
}

func (m *MockQueueService) ticketResult(args mock.Arguments) (*domain.Ticket, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockQueueService) ticketsResult(args mock.Arguments) ([]*domain.Ticket, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Ticket), args.Error(1)
}

func (m *MockQueueService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return m.ticketResult(m.Called(ctx, ticketID))
}

func (m *MockQueueService) GetByOrganization(ctx context.Context, orgID string, filter domain.TicketFilter) ([]*domain.Ticket, error) {
	return m.ticketsResult(m.Called(ctx, orgID, filter))
}

func (m *MockQueueService) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Organization), args.Error(1)
}

func (m *MockQueueService) Join(ctx context.Context, params ports.JoinQueueParams) (*domain.Ticket, error) {
	return m.ticketResult(m.Called(ctx, params))
}

func (m *MockQueueService) Cancel(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return m.ticketResult(m.Called(ctx, params))
}

func (m *MockQueueService) SwapToNext(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return m.ticketResult(m.Called(ctx, params))
}

func (m *MockQueueService) MarkComing(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return m.ticketResult(m.Called(ctx, params))
}

func (m *MockQueueService) Evaluate(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return m.ticketResult(m.Called(ctx, params))
}

func (m *MockQueueService) Call(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return m.ticketResult(m.Called(ctx, params))
}

func (m *MockQueueService) Recall(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return m.ticketResult(m.Called(ctx, params))
}

func (m *MockQueueService) Finish(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return m.ticketResult(m.Called(ctx, params))
}

func (m *MockQueueService) Skip(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return m.ticketResult(m.Called(ctx, params))
}

func (m *MockQueueService) Requeue(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return m.ticketResult(m.Called(ctx, params))
}

func (m *MockQueueService) ListMine(ctx context.Context, params ports.ListMineParams) ([]*domain.Ticket, error) {
	return m.ticketsResult(m.Called(ctx, params))
}

func (m *MockQueueService) CallNext(ctx context.Context, params ports.CallNextParams) (*domain.Ticket, error) {
	return m.ticketResult(m.Called(ctx, params))
}

func (m *MockQueueService) UpdateSettings(ctx context.Context, params ports.UpdateSettingsParams) (*domain.Organization, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Organization), args.Error(1)
}

func (m *MockQueueService) GetStats(ctx context.Context, orgID string) (*domain.QueueStats, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueueStats), args.Error(1)
}

func (m *MockQueueService) Shutdown() {
	m.Called()
}

// MockNotifier is a mock implementation of ports.Notifier
type MockNotifier struct {
	mock.Mock
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) TicketCalled(ctx context.Context, payload domain.TicketCalled) {
	m.Called(ctx, payload)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(event domain.Event) error {
	args := m.Called(event)
	return args.Error(0)
}
