// Package memory is an in-process queue store. It backs development setups
// and tests, and keeps the same locking and commit semantics as the
// PostgreSQL adapter.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/navbat/queue-backend/internal/core/domain"
	apperrors "github.com/navbat/queue-backend/internal/core/errors"
	"github.com/navbat/queue-backend/internal/core/ports"
)

// ErrStoreClosed is returned by every operation after Close.
var ErrStoreClosed = errors.New("memory store is closed")

type counterKey struct {
	orgID  string
	prefix string
}

// Store holds tickets, organization settings and number counters.
type Store struct {
	namespace string

	mu       sync.RWMutex
	tickets  map[string]*domain.Ticket
	orgs     map[string]*domain.Organization
	counters map[counterKey]int
	closed   bool

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

var (
	_ ports.TicketRepository       = (*Store)(nil)
	_ ports.OrganizationRepository = (*Store)(nil)
	_ ports.TransactionManager     = (*Store)(nil)
)

// Open creates an empty store labelled with namespace.
func Open(namespace string) *Store {
	return &Store{
		namespace: namespace,
		tickets:   make(map[string]*domain.Ticket),
		orgs:      make(map[string]*domain.Organization),
		counters:  make(map[counterKey]int),
		locks:     make(map[string]chan struct{}),
	}
}

// Namespace returns the label the store was opened with.
func (s *Store) Namespace() string {
	return s.namespace
}

// Close releases the store. Later calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.tickets = nil
	s.orgs = nil
	s.counters = nil
	return nil
}

// Ping reports whether the store is usable.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return ctx.Err()
}

// --- Transactions ---

type txKey struct{}

// txn buffers writes made under an organization lock until commit.
type txn struct {
	orgID    string
	tickets  map[string]*domain.Ticket
	orgs     map[string]*domain.Organization
	counters map[counterKey]int
}

func txFromContext(ctx context.Context) *txn {
	tx, _ := ctx.Value(txKey{}).(*txn)
	return tx
}

func (s *Store) orgLock(orgID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[orgID]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[orgID] = lock
	}
	return lock
}

// WithOrganizationLock serializes fn against every other mutation of the
// same organization. Staged writes become visible to readers only after fn
// returns nil.
func (s *Store) WithOrganizationLock(ctx context.Context, orgID string, fn func(ctx context.Context) error) error {
	if existing := txFromContext(ctx); existing != nil {
		if existing.orgID == orgID {
			return fn(ctx)
		}
		return fmt.Errorf("organization %s is already locked in this transaction", existing.orgID)
	}

	lock := s.orgLock(orgID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	tx := &txn{
		orgID:    orgID,
		tickets:  make(map[string]*domain.Ticket),
		orgs:     make(map[string]*domain.Organization),
		counters: make(map[counterKey]int),
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	for id, t := range tx.tickets {
		s.tickets[id] = t
	}
	for id, org := range tx.orgs {
		s.orgs[id] = org
	}
	for key, v := range tx.counters {
		s.counters[key] = v
	}
	return nil
}

// --- TicketRepository ---

func (s *Store) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	if _, err := s.lookup(ctx, ticket.ID); err == nil {
		return nil, fmt.Errorf("ticket %s: %w", ticket.ID, apperrors.ErrConflict)
	} else if !errors.Is(err, apperrors.ErrTicketNotFound) {
		return nil, err
	}
	if err := s.put(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket.Clone(), nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	t, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (s *Store) Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	if _, err := s.lookup(ctx, ticket.ID); err != nil {
		return nil, err
	}
	if err := s.put(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket.Clone(), nil
}

func (s *Store) ListByOrganization(ctx context.Context, orgID string, filter domain.TicketFilter) ([]*domain.Ticket, error) {
	return s.list(ctx, func(t *domain.Ticket) bool {
		return t.OrganizationID == orgID && filter.Matches(t)
	})
}

func (s *Store) ListByHolder(ctx context.Context, holderID string, activeOnly bool) ([]*domain.Ticket, error) {
	return s.list(ctx, func(t *domain.Ticket) bool {
		if !t.IsHeldBy(holderID) {
			return false
		}
		return !activeOnly || t.Status.IsActive()
	})
}

func (s *Store) NextNumber(ctx context.Context, orgID, prefix string) (int, error) {
	key := counterKey{orgID: orgID, prefix: prefix}
	tx := txFromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	current := s.counters[key]
	if tx != nil {
		if staged, ok := tx.counters[key]; ok {
			current = staged
		}
		tx.counters[key] = current + 1
		return current + 1, nil
	}
	s.counters[key] = current + 1
	return current + 1, nil
}

// --- OrganizationRepository ---

func (s *Store) Get(ctx context.Context, id string) (*domain.Organization, error) {
	if tx := txFromContext(ctx); tx != nil {
		if org, ok := tx.orgs[id]; ok {
			c := *org
			return &c, nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	org, ok := s.orgs[id]
	if !ok {
		return nil, apperrors.ErrOrganizationNotFound
	}
	c := *org
	return &c, nil
}

func (s *Store) Upsert(ctx context.Context, org *domain.Organization) (*domain.Organization, error) {
	stored := *org
	if tx := txFromContext(ctx); tx != nil {
		tx.orgs[org.ID] = &stored
	} else {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return nil, ErrStoreClosed
		}
		s.orgs[org.ID] = &stored
	}
	c := stored
	return &c, nil
}

// --- helpers ---

// lookup returns the stored ticket, preferring the transaction's staged
// copy. Callers must clone before handing it out.
func (s *Store) lookup(ctx context.Context, id string) (*domain.Ticket, error) {
	if tx := txFromContext(ctx); tx != nil {
		if t, ok := tx.tickets[id]; ok {
			return t, nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	t, ok := s.tickets[id]
	if !ok {
		return nil, apperrors.ErrTicketNotFound
	}
	return t, nil
}

func (s *Store) put(ctx context.Context, ticket *domain.Ticket) error {
	stored := ticket.Clone()
	if tx := txFromContext(ctx); tx != nil {
		tx.tickets[stored.ID] = stored
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.tickets[stored.ID] = stored
	return nil
}

func (s *Store) list(ctx context.Context, match func(*domain.Ticket) bool) ([]*domain.Ticket, error) {
	tx := txFromContext(ctx)

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	result := make([]*domain.Ticket, 0)
	for id, t := range s.tickets {
		if tx != nil {
			if _, staged := tx.tickets[id]; staged {
				continue
			}
		}
		if match(t) {
			result = append(result, t.Clone())
		}
	}
	s.mu.RUnlock()

	if tx != nil {
		for _, t := range tx.tickets {
			if match(t) {
				result = append(result, t.Clone())
			}
		}
	}

	domain.SortByQueueOrder(result)
	return result, nil
}
