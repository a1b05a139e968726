package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/navbat/queue-backend/internal/core/domain"
	apperrors "github.com/navbat/queue-backend/internal/core/errors"
	"github.com/navbat/queue-backend/internal/core/ports"
)

// QueueService implements the ticket lifecycle and queue maintenance.
type QueueService struct {
	ticketRepo     ports.TicketRepository
	orgRepo        ports.OrganizationRepository
	txManager      ports.TransactionManager
	notifier       ports.Notifier
	broadcaster    ports.EventBroadcaster
	metrics        ports.QueueMetrics
	logger         *slog.Logger
	now            func() time.Time
	serviceMinutes int
	wg             sync.WaitGroup
}

var _ ports.QueueService = (*QueueService)(nil)

// Option configures a QueueService.
type Option func(*QueueService)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *QueueService) { s.now = now }
}

// WithMetrics records transitions and queue depth.
func WithMetrics(m ports.QueueMetrics) Option {
	return func(s *QueueService) { s.metrics = m }
}

// WithDefaultServiceMinutes sets the service time used for organizations
// without stored settings.
func WithDefaultServiceMinutes(minutes int) Option {
	return func(s *QueueService) {
		if minutes > 0 {
			s.serviceMinutes = minutes
		}
	}
}

// NewQueueService creates a new queue service
func NewQueueService(
	ticketRepo ports.TicketRepository,
	orgRepo ports.OrganizationRepository,
	txManager ports.TransactionManager,
	notifier ports.Notifier,
	broadcaster ports.EventBroadcaster,
	logger *slog.Logger,
	opts ...Option,
) *QueueService {
	s := &QueueService{
		ticketRepo:     ticketRepo,
		orgRepo:        orgRepo,
		txManager:      txManager,
		notifier:       notifier,
		broadcaster:    broadcaster,
		metrics:        noopMetrics{},
		logger:         logger.With("component", "queue_service"),
		now:            time.Now,
		serviceMinutes: domain.DefaultServiceMinutes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Reads ---

// GetTicket returns a snapshot of a single ticket.
func (s *QueueService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if err := requireID("ticketId", ticketID); err != nil {
		return nil, err
	}
	return s.ticketRepo.GetByID(ctx, ticketID)
}

// GetByOrganization returns the organization's tickets in queue order.
func (s *QueueService) GetByOrganization(ctx context.Context, orgID string, filter domain.TicketFilter) ([]*domain.Ticket, error) {
	if err := requireID("organizationId", orgID); err != nil {
		return nil, err
	}
	if !filter.View.IsValid() {
		errs := apperrors.NewValidationErrors()
		errs.Add("view", "View must be one of: live, appointments")
		return nil, errs
	}

	tickets, err := s.ticketRepo.ListByOrganization(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}
	domain.SortByQueueOrder(tickets)
	return tickets, nil
}

// GetOrganization returns stored settings or the defaults.
func (s *QueueService) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	if err := requireID("organizationId", orgID); err != nil {
		return nil, err
	}
	return s.organization(ctx, orgID)
}

// ListMine returns a holder's tickets across organizations.
func (s *QueueService) ListMine(ctx context.Context, params ports.ListMineParams) ([]*domain.Ticket, error) {
	if err := requireID("holderId", params.HolderID); err != nil {
		return nil, err
	}
	return s.ticketRepo.ListByHolder(ctx, params.HolderID, params.ActiveOnly)
}

// GetStats aggregates the organization's tickets for the dashboard.
func (s *QueueService) GetStats(ctx context.Context, orgID string) (*domain.QueueStats, error) {
	if err := requireID("organizationId", orgID); err != nil {
		return nil, err
	}
	org, err := s.organization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.ticketRepo.ListByOrganization(ctx, orgID, domain.TicketFilter{})
	if err != nil {
		return nil, err
	}
	return domain.ComputeQueueStats(orgID, tickets, org.ServiceMinutes()), nil
}

// --- Holder operations ---

// Join creates a WAITING ticket and renumbers the organization's queue.
func (s *QueueService) Join(ctx context.Context, params ports.JoinQueueParams) (*domain.Ticket, error) {
	draft := domain.TicketParams{
		OrganizationID:  params.OrganizationID,
		ServiceID:       params.ServiceID,
		UserID:          params.UserID,
		UserPhone:       params.UserPhone,
		AppointmentTime: params.AppointmentTime,
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	var created *domain.Ticket
	depth := -1
	err := s.txManager.WithOrganizationLock(ctx, draft.OrganizationID, func(ctx context.Context) error {
		org, err := s.organization(ctx, draft.OrganizationID)
		if err != nil {
			return err
		}
		if !org.AcceptsTickets() {
			return apperrors.ErrOrganizationClosed
		}

		active, err := s.ticketRepo.ListByOrganization(ctx, draft.OrganizationID, domain.ActiveFilter())
		if err != nil {
			return err
		}
		for _, t := range active {
			if t.IsHeldBy(draft.UserPhone) || t.IsHeldBy(draft.UserID) {
				return apperrors.ErrAlreadyQueued
			}
		}

		prefix := draft.NumberPrefix()
		seq, err := s.ticketRepo.NextNumber(ctx, draft.OrganizationID, prefix)
		if err != nil {
			return err
		}

		ticket, err := domain.NewTicket(draft, formatTicketNumber(prefix, seq), s.now())
		if err != nil {
			return err
		}
		if _, err := s.ticketRepo.Create(ctx, ticket); err != nil {
			return err
		}

		if depth, err = s.recompute(ctx, org); err != nil {
			return err
		}

		created, err = s.ticketRepo.GetByID(ctx, ticket.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(domain.ActionJoined, created, depth)
	return created, nil
}

// Cancel withdraws a WAITING ticket.
func (s *QueueService) Cancel(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return s.applyAction(ctx, params, domain.ActionCancelled)
}

// SwapToNext moves a WAITING ticket to the back of the live queue.
func (s *QueueService) SwapToNext(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return s.applyAction(ctx, params, domain.ActionSwapped)
}

// MarkComing records that the holder is on the way.
func (s *QueueService) MarkComing(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return s.applyAction(ctx, params, domain.ActionComing)
}

// Evaluate records the holder's rating of a served ticket.
func (s *QueueService) Evaluate(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	orgID, err := s.ticketOrganization(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, mutation{
		orgID:  orgID,
		action: domain.ActionEvaluated,
		load:   s.loadByID(params.TicketID),
		apply: func(t *domain.Ticket, now time.Time) error {
			return t.Evaluate(params.ActorID, now)
		},
	})
}

// --- Staff operations ---

// Call moves a WAITING ticket to CALLED.
func (s *QueueService) Call(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return s.applyAction(ctx, params, domain.ActionCalled)
}

// CallNext calls the ticket at position 0 of the live queue.
func (s *QueueService) CallNext(ctx context.Context, params ports.CallNextParams) (*domain.Ticket, error) {
	if err := requireID("organizationId", params.OrganizationID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, mutation{
		orgID:  params.OrganizationID,
		action: domain.ActionCalled,
		load: func(ctx context.Context) (*domain.Ticket, error) {
			waiting, err := s.ticketRepo.ListByOrganization(ctx, params.OrganizationID, domain.LiveWaitingFilter())
			if err != nil {
				return nil, err
			}
			head := domain.HeadOfQueue(waiting)
			if head == nil {
				return nil, apperrors.ErrNoWaitingTicket
			}
			return head, nil
		},
		apply: func(t *domain.Ticket, now time.Time) error {
			return t.Apply(domain.ActionCalled, params.ActorID, "", now)
		},
	})
}

// Recall announces a CALLED ticket again.
func (s *QueueService) Recall(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return s.applyAction(ctx, params, domain.ActionRecalled)
}

// Finish marks a CALLED ticket as SERVED.
func (s *QueueService) Finish(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return s.applyAction(ctx, params, domain.ActionServed)
}

// Skip marks a CALLED ticket as SKIPPED, e.g. when the holder did not show up.
func (s *QueueService) Skip(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return s.applyAction(ctx, params, domain.ActionSkipped)
}

// Requeue returns a CALLED ticket to the back of the live queue.
func (s *QueueService) Requeue(ctx context.Context, params ports.TicketActionParams) (*domain.Ticket, error) {
	return s.applyAction(ctx, params, domain.ActionRequeued)
}

// UpdateSettings changes the organization's queue settings and refreshes
// every ETA under the new service time.
func (s *QueueService) UpdateSettings(ctx context.Context, params ports.UpdateSettingsParams) (*domain.Organization, error) {
	if err := requireID("organizationId", params.OrganizationID); err != nil {
		return nil, err
	}
	if err := params.Settings.Validate(); err != nil {
		return nil, err
	}

	var saved *domain.Organization
	depth := -1
	err := s.txManager.WithOrganizationLock(ctx, params.OrganizationID, func(ctx context.Context) error {
		org, err := s.organization(ctx, params.OrganizationID)
		if err != nil {
			return err
		}
		if err := org.ApplySettings(params.Settings, s.now()); err != nil {
			return err
		}
		if saved, err = s.orgRepo.Upsert(ctx, org); err != nil {
			return err
		}
		depth, err = s.recompute(ctx, saved)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("organization settings updated",
		"org_id", saved.ID,
		"actor_id", params.ActorID,
		"status", saved.Status,
		"service_minutes", saved.ServiceMinutes(),
	)
	s.metrics.QueueDepth(saved.ID, depth)
	s.broadcast(domain.NewQueueChangedEvent(saved.ID, s.now()))
	return saved, nil
}

// Shutdown waits for in-flight notifications.
func (s *QueueService) Shutdown() {
	s.wg.Wait()
}

// --- Internals ---

type mutation struct {
	orgID  string
	action domain.TicketAction
	load   func(ctx context.Context) (*domain.Ticket, error)
	apply  func(t *domain.Ticket, now time.Time) error
}

func (s *QueueService) applyAction(ctx context.Context, params ports.TicketActionParams, action domain.TicketAction) (*domain.Ticket, error) {
	orgID, err := s.ticketOrganization(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, mutation{
		orgID:  orgID,
		action: action,
		load:   s.loadByID(params.TicketID),
		apply: func(t *domain.Ticket, now time.Time) error {
			return t.Apply(action, params.ActorID, params.Reason, now)
		},
	})
}

// ticketOrganization validates the action input and resolves the ticket's
// organization, which never changes, so it can be read before locking.
func (s *QueueService) ticketOrganization(ctx context.Context, params ports.TicketActionParams) (string, error) {
	errs := apperrors.NewValidationErrors()
	if strings.TrimSpace(params.TicketID) == "" {
		errs.Add("ticketId", "Ticket ID is required")
	}
	if len(params.Reason) > domain.MaxReasonLength {
		errs.Add("reason", fmt.Sprintf("Reason must be at most %d characters", domain.MaxReasonLength))
	}
	if errs.HasErrors() {
		return "", errs
	}

	ticket, err := s.ticketRepo.GetByID(ctx, params.TicketID)
	if err != nil {
		return "", err
	}
	return ticket.OrganizationID, nil
}

func (s *QueueService) loadByID(ticketID string) func(ctx context.Context) (*domain.Ticket, error) {
	return func(ctx context.Context) (*domain.Ticket, error) {
		return s.ticketRepo.GetByID(ctx, ticketID)
	}
}

// mutate runs one transition under the organization lock: load, apply,
// persist, renumber, then re-read so the caller sees committed positions.
func (s *QueueService) mutate(ctx context.Context, m mutation) (*domain.Ticket, error) {
	var result *domain.Ticket
	depth := -1
	err := s.txManager.WithOrganizationLock(ctx, m.orgID, func(ctx context.Context) error {
		ticket, err := m.load(ctx)
		if err != nil {
			return err
		}
		if err := m.apply(ticket, s.now()); err != nil {
			return err
		}
		if _, err := s.ticketRepo.Update(ctx, ticket); err != nil {
			return err
		}

		if domain.ReordersQueue(m.action) {
			org, err := s.organization(ctx, m.orgID)
			if err != nil {
				return err
			}
			if depth, err = s.recompute(ctx, org); err != nil {
				return err
			}
		}

		result, err = s.ticketRepo.GetByID(ctx, ticket.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(m.action, result, depth)
	return result, nil
}

// recompute renumbers the live queue and persists the changed tickets.
// It returns the number of WAITING live tickets.
func (s *QueueService) recompute(ctx context.Context, org *domain.Organization) (int, error) {
	waiting, err := s.ticketRepo.ListByOrganization(ctx, org.ID, domain.LiveWaitingFilter())
	if err != nil {
		return 0, err
	}
	for _, t := range domain.RecomputePositions(waiting, org.ServiceMinutes()) {
		if _, err := s.ticketRepo.Update(ctx, t); err != nil {
			return 0, fmt.Errorf("update position of ticket %s: %w", t.ID, err)
		}
	}
	return len(waiting), nil
}

func (s *QueueService) organization(ctx context.Context, orgID string) (*domain.Organization, error) {
	org, err := s.orgRepo.Get(ctx, orgID)
	if errors.Is(err, apperrors.ErrOrganizationNotFound) {
		return domain.DefaultOrganization(orgID, s.serviceMinutes), nil
	}
	if err != nil {
		return nil, err
	}
	return org, nil
}

func (s *QueueService) afterCommit(action domain.TicketAction, ticket *domain.Ticket, depth int) {
	s.metrics.TicketTransitioned(action)
	if depth >= 0 {
		s.metrics.QueueDepth(ticket.OrganizationID, depth)
	}

	now := s.now()
	s.broadcast(domain.NewQueueChangedEvent(ticket.OrganizationID, now))

	if action == domain.ActionCalled || action == domain.ActionRecalled {
		s.broadcast(domain.NewTicketCalledEvent(ticket, now))
		s.notifyTicketCalled(ticket)
	}
}

func (s *QueueService) broadcast(event domain.Event) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Broadcast(event); err != nil {
		s.logger.Warn("failed to broadcast queue event",
			"event_type", event.Type,
			"org_id", event.OrganizationID,
			"error", err,
		)
	}
}

// notifyTicketCalled fires the hook in the background; the HTTP request may
// be done by the time it runs.
func (s *QueueService) notifyTicketCalled(ticket *domain.Ticket) {
	if s.notifier == nil {
		return
	}
	payload := domain.NewTicketCalled(ticket)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.notifier.TicketCalled(context.Background(), payload)
	}()
}

func formatTicketNumber(prefix string, seq int) string {
	return fmt.Sprintf("%s-%03d", prefix, seq)
}

func requireID(field, value string) error {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	errs := apperrors.NewValidationErrors()
	errs.Add(field, "This field is required")
	return errs
}

type noopMetrics struct{}

func (noopMetrics) TicketTransitioned(domain.TicketAction) {}
func (noopMetrics) QueueDepth(string, int)                 {}
