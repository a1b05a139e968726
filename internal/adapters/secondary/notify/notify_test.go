package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/navbat/queue-backend/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAnnouncer struct {
	got []domain.TicketCalled
	err error
}

func (r *recordingAnnouncer) Announce(ctx context.Context, payload domain.TicketCalled) error {
	r.got = append(r.got, payload)
	return r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var called = domain.TicketCalled{TicketID: "t1", TicketNumber: "A-007", OrganizationID: "org1"}

func TestNewTicketCalledTask(t *testing.T) {
	task, err := NewTicketCalledTask(called)
	require.NoError(t, err)
	assert.Equal(t, TypeTicketCalled, task.Type())
	assert.JSONEq(t, `{"ticketId":"t1","ticketNumber":"A-007","organizationId":"org1"}`, string(task.Payload()))
}

func TestWorker_HandleTicketCalled(t *testing.T) {
	tests := []struct {
		name        string
		payload     []byte
		announceErr error
		wantErr     bool
		skipRetry   bool
		announced   int
	}{
		{
			name:      "announces",
			payload:   []byte(`{"ticketId":"t1","ticketNumber":"A-007","organizationId":"org1"}`),
			announced: 1,
		},
		{
			name:    "malformed payload",
			payload: []byte(`{`),
			wantErr: true,
		},
		{
			name:      "missing number is not retried",
			payload:   []byte(`{"ticketId":"t1","organizationId":"org1"}`),
			wantErr:   true,
			skipRetry: true,
		},
		{
			name:        "announcer failure is returned for retry",
			payload:     []byte(`{"ticketId":"t1","ticketNumber":"A-007","organizationId":"org1"}`),
			announceErr: errors.New("gateway down"),
			wantErr:     true,
			announced:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			announcer := &recordingAnnouncer{err: tt.announceErr}
			w := &Worker{announcer: announcer, logger: discardLogger()}

			err := w.HandleTicketCalled(context.Background(), asynq.NewTask(TypeTicketCalled, tt.payload))

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
			require.Len(t, announcer.got, tt.announced)
			if tt.announced > 0 {
				assert.Equal(t, called, announcer.got[0])
			}
		})
	}
}

func TestLogNotifier_TicketCalled(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	n.TicketCalled(context.Background(), called)

	out := buf.String()
	assert.Contains(t, out, `"ticket_number":"A-007"`)
	assert.Contains(t, out, `"org_id":"org1"`)
	assert.Contains(t, out, `"component":"log_notifier"`)
}
