package domain_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/navbat/queue-backend/internal/core/domain"
	apperrors "github.com/navbat/queue-backend/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func TestTicketStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status domain.TicketStatus
		want   bool
	}{
		{"WAITING is valid", domain.StatusWaiting, true},
		{"CALLED is valid", domain.StatusCalled, true},
		{"SERVED is valid", domain.StatusServed, true},
		{"SKIPPED is valid", domain.StatusSkipped, true},
		{"CANCELLED is valid", domain.StatusCancelled, true},
		{"empty is invalid", domain.TicketStatus(""), false},
		{"lowercase is invalid", domain.TicketStatus("waiting"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsValid())
		})
	}
}

func TestTicketStatus_IsTerminal(t *testing.T) {
	assert.False(t, domain.StatusWaiting.IsTerminal())
	assert.False(t, domain.StatusCalled.IsTerminal())
	assert.True(t, domain.StatusServed.IsTerminal())
	assert.True(t, domain.StatusSkipped.IsTerminal())
	assert.True(t, domain.StatusCancelled.IsTerminal())
}

func TestNewTicket(t *testing.T) {
	appointment := baseTime.Add(2 * time.Hour)

	tests := []struct {
		name        string
		params      domain.TicketParams
		expectError bool
		errorField  string
	}{
		{
			name: "valid live ticket",
			params: domain.TicketParams{
				OrganizationID: "org1",
				UserPhone:      "+998901234567",
			},
		},
		{
			name: "valid appointment with service",
			params: domain.TicketParams{
				OrganizationID:  "org1",
				ServiceID:       strPtr("svc-1"),
				UserID:          "user-1",
				AppointmentTime: &appointment,
			},
		},
		{
			name: "missing organization",
			params: domain.TicketParams{
				OrganizationID: "   ",
				UserPhone:      "+998901234567",
			},
			expectError: true,
			errorField:  "organizationId",
		},
		{
			name: "organization too long",
			params: domain.TicketParams{
				OrganizationID: strings.Repeat("o", domain.MaxIdentifierLength+1),
				UserPhone:      "+998901234567",
			},
			expectError: true,
			errorField:  "organizationId",
		},
		{
			name: "blank service id",
			params: domain.TicketParams{
				OrganizationID: "org1",
				ServiceID:      strPtr("  "),
				UserPhone:      "+998901234567",
			},
			expectError: true,
			errorField:  "serviceId",
		},
		{
			name: "missing holder",
			params: domain.TicketParams{
				OrganizationID: "org1",
			},
			expectError: true,
			errorField:  "userPhone",
		},
		{
			name: "zero appointment time",
			params: domain.TicketParams{
				OrganizationID:  "org1",
				UserPhone:       "+998901234567",
				AppointmentTime: &time.Time{},
			},
			expectError: true,
			errorField:  "appointmentTime",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket, err := domain.NewTicket(tt.params, "A-001", baseTime)

			if tt.expectError {
				require.Error(t, err)

				var validationErr *apperrors.ValidationErrors
				if assert.ErrorAs(t, err, &validationErr) {
					assert.Contains(t, validationErr.Errors, tt.errorField)
				}
				assert.Nil(t, ticket)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, ticket)
			assert.NotEmpty(t, ticket.ID)
			assert.Equal(t, "org1", ticket.OrganizationID)
			assert.Equal(t, "A-001", ticket.Number)
			assert.Equal(t, domain.StatusWaiting, ticket.Status)
			assert.Equal(t, baseTime, ticket.EntryTime)
			assert.Equal(t, baseTime, ticket.QueuedAt)
			require.Len(t, ticket.Logs, 1)
			assert.Equal(t, domain.ActionJoined, ticket.Logs[0].Action)
		})
	}
}

func TestNewTicket_IDsAreTimeOrdered(t *testing.T) {
	params := domain.TicketParams{OrganizationID: "org1", UserPhone: "p"}

	first, err := domain.NewTicket(params, "A-001", baseTime)
	require.NoError(t, err)
	second, err := domain.NewTicket(params, "A-002", baseTime)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Less(t, first.ID, second.ID)
}

func TestTicketParams_NumberPrefix(t *testing.T) {
	live := domain.TicketParams{OrganizationID: "org1", UserPhone: "p"}
	assert.Equal(t, "A", live.NumberPrefix())

	at := baseTime
	booked := domain.TicketParams{OrganizationID: "org1", UserPhone: "p", AppointmentTime: &at}
	assert.Equal(t, "B", booked.NumberPrefix())
}

func TestTicket_Apply(t *testing.T) {
	allStatuses := []domain.TicketStatus{
		domain.StatusWaiting,
		domain.StatusCalled,
		domain.StatusServed,
		domain.StatusSkipped,
		domain.StatusCancelled,
	}

	legal := map[domain.TicketAction]struct {
		from domain.TicketStatus
		to   domain.TicketStatus
	}{
		domain.ActionCalled:    {domain.StatusWaiting, domain.StatusCalled},
		domain.ActionCancelled: {domain.StatusWaiting, domain.StatusCancelled},
		domain.ActionServed:    {domain.StatusCalled, domain.StatusServed},
		domain.ActionSkipped:   {domain.StatusCalled, domain.StatusSkipped},
		domain.ActionRecalled:  {domain.StatusCalled, domain.StatusCalled},
		domain.ActionRequeued:  {domain.StatusCalled, domain.StatusWaiting},
		domain.ActionSwapped:   {domain.StatusWaiting, domain.StatusWaiting},
		domain.ActionComing:    {domain.StatusWaiting, domain.StatusWaiting},
	}

	for action, rule := range legal {
		for _, status := range allStatuses {
			name := string(action) + " from " + string(status)
			t.Run(name, func(t *testing.T) {
				eta := baseTime.Add(45 * time.Minute)
				ticket := &domain.Ticket{
					ID:                 "t1",
					Status:             status,
					Position:           3,
					EstimatedStartTime: eta,
					QueuedAt:           baseTime,
					Logs: []domain.QueueLog{
						{Timestamp: baseTime, Action: domain.ActionJoined, ActorID: "holder"},
					},
				}
				prior := append([]domain.QueueLog(nil), ticket.Logs...)
				now := baseTime.Add(time.Minute)

				err := ticket.Apply(action, "actor", "reason", now)

				if status != rule.from {
					require.Error(t, err)
					assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
					var transitionErr *apperrors.TransitionError
					require.ErrorAs(t, err, &transitionErr)
					assert.Equal(t, "t1", transitionErr.TicketID)
					assert.Equal(t, status, ticket.Status)
					assert.Equal(t, 3, ticket.Position)
					assert.Len(t, ticket.Logs, 1)
					assert.Equal(t, baseTime, ticket.QueuedAt)
					return
				}

				require.NoError(t, err)
				assert.Equal(t, rule.to, ticket.Status)
				assert.Equal(t, 3, ticket.Position)
				assert.Equal(t, eta, ticket.EstimatedStartTime)
				require.Len(t, ticket.Logs, 2)
				assert.Equal(t, prior, ticket.Logs[:len(prior)])
				entry := ticket.Logs[1]
				assert.Equal(t, action, entry.Action)
				assert.Equal(t, "actor", entry.ActorID)
				assert.Equal(t, "reason", entry.Reason)
				assert.Equal(t, now, entry.Timestamp)
			})
		}
	}
}

func TestTicket_Apply_Bookkeeping(t *testing.T) {
	now := baseTime.Add(10 * time.Minute)

	t.Run("call sets calledAt", func(t *testing.T) {
		ticket := &domain.Ticket{Status: domain.StatusWaiting, QueuedAt: baseTime}
		require.NoError(t, ticket.Apply(domain.ActionCalled, "staff", "", now))
		require.NotNil(t, ticket.CalledAt)
		assert.Equal(t, now, *ticket.CalledAt)
		assert.Nil(t, ticket.ClosedAt)
	})

	t.Run("requeue moves to back", func(t *testing.T) {
		called := baseTime.Add(5 * time.Minute)
		ticket := &domain.Ticket{Status: domain.StatusCalled, QueuedAt: baseTime, CalledAt: &called}
		require.NoError(t, ticket.Apply(domain.ActionRequeued, "staff", "", now))
		assert.Equal(t, now, ticket.QueuedAt)
		assert.Nil(t, ticket.CalledAt)
	})

	t.Run("swap moves to back", func(t *testing.T) {
		ticket := &domain.Ticket{Status: domain.StatusWaiting, QueuedAt: baseTime}
		require.NoError(t, ticket.Apply(domain.ActionSwapped, "holder", "", now))
		assert.Equal(t, now, ticket.QueuedAt)
	})

	t.Run("coming only logs", func(t *testing.T) {
		ticket := &domain.Ticket{Status: domain.StatusWaiting, QueuedAt: baseTime}
		require.NoError(t, ticket.Apply(domain.ActionComing, "holder", "", now))
		assert.Equal(t, baseTime, ticket.QueuedAt)
		assert.True(t, ticket.IsComing())
	})

	t.Run("terminal transitions set closedAt", func(t *testing.T) {
		for _, action := range []domain.TicketAction{domain.ActionServed, domain.ActionSkipped} {
			ticket := &domain.Ticket{Status: domain.StatusCalled}
			require.NoError(t, ticket.Apply(action, "staff", "", now))
			require.NotNil(t, ticket.ClosedAt)
			assert.True(t, ticket.Status.IsTerminal())
		}
	})
}

func TestTicket_Evaluate(t *testing.T) {
	t.Run("served ticket is rated once", func(t *testing.T) {
		ticket := &domain.Ticket{ID: "t1", Status: domain.StatusServed}

		require.NoError(t, ticket.Evaluate("holder", baseTime))
		assert.True(t, ticket.Evaluated)
		require.Len(t, ticket.Logs, 1)
		assert.Equal(t, domain.ActionEvaluated, ticket.Logs[0].Action)

		err := ticket.Evaluate("holder", baseTime)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyEvaluated)
		assert.Len(t, ticket.Logs, 1)
	})

	t.Run("waiting ticket cannot be rated", func(t *testing.T) {
		ticket := &domain.Ticket{ID: "t1", Status: domain.StatusWaiting}

		err := ticket.Evaluate("holder", baseTime)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
		assert.False(t, ticket.Evaluated)
		assert.Empty(t, ticket.Logs)
	})
}

func TestTicket_IsHeldBy(t *testing.T) {
	ticket := &domain.Ticket{UserPhone: "+998901234567", UserID: "user-1"}

	assert.True(t, ticket.IsHeldBy("+998901234567"))
	assert.True(t, ticket.IsHeldBy("user-1"))
	assert.False(t, ticket.IsHeldBy("someone-else"))
	assert.False(t, (&domain.Ticket{}).IsHeldBy(""))
}

func TestTicket_DisplayPosition(t *testing.T) {
	waiting := &domain.Ticket{Status: domain.StatusWaiting, Position: 2}
	called := &domain.Ticket{Status: domain.StatusCalled, Position: 2}

	assert.Equal(t, 2, waiting.DisplayPosition())
	assert.Equal(t, 0, called.DisplayPosition())
}

func TestTicket_Clone(t *testing.T) {
	called := baseTime
	original := &domain.Ticket{
		ID:       "t1",
		CalledAt: &called,
		Logs:     []domain.QueueLog{{Action: domain.ActionJoined}},
	}

	c := original.Clone()
	c.Logs[0].Action = domain.ActionCancelled
	*c.CalledAt = baseTime.Add(time.Hour)

	assert.Equal(t, domain.ActionJoined, original.Logs[0].Action)
	assert.Equal(t, baseTime, *original.CalledAt)
}

func TestNewTicketSnapshot(t *testing.T) {
	ticket := &domain.Ticket{
		ID:                 "t1",
		OrganizationID:     "org1",
		UserPhone:          "p",
		Number:             "A-001",
		Status:             domain.StatusCalled,
		Position:           4,
		EntryTime:          baseTime,
		QueuedAt:           baseTime.Add(123 * time.Nanosecond),
		EstimatedStartTime: baseTime.Add(time.Hour),
	}

	snap := domain.NewTicketSnapshot(ticket)
	assert.Equal(t, 0, snap.Position)
	assert.Equal(t, "2026-03-02T09:00:00.000000123Z", snap.QueuedAt)
	assert.Nil(t, snap.EstimatedStartTime)
	assert.Nil(t, snap.UserID)
	require.NotNil(t, snap.UserPhone)
	assert.Equal(t, "p", *snap.UserPhone)
	assert.NotNil(t, snap.Logs)
}
