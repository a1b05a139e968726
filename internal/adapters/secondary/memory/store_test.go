package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/navbat/queue-backend/internal/adapters/secondary/memory"
	"github.com/navbat/queue-backend/internal/core/domain"
	apperrors "github.com/navbat/queue-backend/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTicket(t *testing.T, orgID, phone string) *domain.Ticket {
	t.Helper()
	ticket, err := domain.NewTicket(domain.TicketParams{
		OrganizationID: orgID,
		UserPhone:      phone,
	}, "A-001", now)
	require.NoError(t, err)
	return ticket
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := memory.Open("test")
	defer store.Close()

	ticket := newTicket(t, "org1", "p1")
	_, err := store.Create(ctx, ticket)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, got.ID)
	assert.Equal(t, "test", store.Namespace())

	_, err = store.Create(ctx, ticket)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrTicketNotFound)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.Open("test")
	defer store.Close()

	ticket := newTicket(t, "org1", "p1")
	_, err := store.Create(ctx, ticket)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	got.Status = domain.StatusCancelled
	got.Logs[0].Action = domain.ActionSkipped

	again, err := store.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, again.Status)
	assert.Equal(t, domain.ActionJoined, again.Logs[0].Action)
}

func TestStore_TransactionCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := memory.Open("test")
	defer store.Close()

	ticket := newTicket(t, "org1", "p1")
	err := store.WithOrganizationLock(ctx, "org1", func(ctx context.Context) error {
		if _, err := store.Create(ctx, ticket); err != nil {
			return err
		}

		// Staged writes are visible inside the transaction only.
		inside, err := store.ListByOrganization(ctx, "org1", domain.TicketFilter{})
		require.NoError(t, err)
		assert.Len(t, inside, 1)

		outside, err := store.ListByOrganization(context.Background(), "org1", domain.TicketFilter{})
		require.NoError(t, err)
		assert.Empty(t, outside)
		return nil
	})
	require.NoError(t, err)

	after, err := store.ListByOrganization(ctx, "org1", domain.TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, after, 1)
}

func TestStore_TransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.Open("test")
	defer store.Close()

	boom := errors.New("boom")
	err := store.WithOrganizationLock(ctx, "org1", func(ctx context.Context) error {
		_, err := store.Create(ctx, newTicket(t, "org1", "p1"))
		require.NoError(t, err)
		n, err := store.NextNumber(ctx, "org1", "A")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	tickets, err := store.ListByOrganization(ctx, "org1", domain.TicketFilter{})
	require.NoError(t, err)
	assert.Empty(t, tickets)

	n, err := store.NextNumber(ctx, "org1", "A")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_NextNumberPerOrganizationAndPrefix(t *testing.T) {
	ctx := context.Background()
	store := memory.Open("test")
	defer store.Close()

	for i := 1; i <= 3; i++ {
		n, err := store.NextNumber(ctx, "org1", "A")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err := store.NextNumber(ctx, "org1", "B")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.NextNumber(ctx, "org2", "A")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ListByHolder(t *testing.T) {
	ctx := context.Background()
	store := memory.Open("test")
	defer store.Close()

	active := newTicket(t, "org1", "p1")
	closed := newTicket(t, "org2", "p1")
	require.NoError(t, closed.Apply(domain.ActionCancelled, "p1", "", now))
	other := newTicket(t, "org1", "p2")

	for _, tk := range []*domain.Ticket{active, closed, other} {
		_, err := store.Create(ctx, tk)
		require.NoError(t, err)
	}

	all, err := store.ListByHolder(ctx, "p1", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := store.ListByHolder(ctx, "p1", true)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, active.ID, onlyActive[0].ID)
}

func TestStore_Organizations(t *testing.T) {
	ctx := context.Background()
	store := memory.Open("test")
	defer store.Close()

	_, err := store.Get(ctx, "org1")
	assert.ErrorIs(t, err, apperrors.ErrOrganizationNotFound)

	_, err = store.Upsert(ctx, &domain.Organization{ID: "org1", Status: domain.OrganizationBusy, EstimatedServiceTime: 7})
	require.NoError(t, err)

	org, err := store.Get(ctx, "org1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrganizationBusy, org.Status)
	assert.Equal(t, 7, org.ServiceMinutes())
}

func TestStore_OrganizationLockSerializes(t *testing.T) {
	ctx := context.Background()
	store := memory.Open("test")
	defer store.Close()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithOrganizationLock(ctx, "org1", func(ctx context.Context) error {
				_, err := store.NextNumber(ctx, "org1", "A")
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := store.NextNumber(ctx, "org1", "A")
	require.NoError(t, err)
	assert.Equal(t, workers+1, n)
}

func TestStore_LockHonorsContext(t *testing.T) {
	store := memory.Open("test")
	defer store.Close()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithOrganizationLock(context.Background(), "org1", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := store.WithOrganizationLock(ctx, "org1", func(ctx context.Context) error {
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Other organizations are not blocked.
	err = store.WithOrganizationLock(context.Background(), "org2", func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestStore_Close(t *testing.T) {
	ctx := context.Background()
	store := memory.Open("test")
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Ping(ctx), memory.ErrStoreClosed)
	_, err := store.GetByID(ctx, "x")
	assert.ErrorIs(t, err, memory.ErrStoreClosed)
	_, err = store.Create(ctx, newTicket(t, "org1", "p1"))
	assert.ErrorIs(t, err, memory.ErrStoreClosed)
	require.NoError(t, store.Close())
}
