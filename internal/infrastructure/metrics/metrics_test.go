package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/navbat/queue-backend/internal/core/domain"
	"github.com/navbat/queue-backend/internal/infrastructure/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_TicketTransitioned(t *testing.T) {
	m := metrics.New()

	m.TicketTransitioned(domain.ActionJoined)
	m.TicketTransitioned(domain.ActionJoined)
	m.TicketTransitioned(domain.ActionCalled)

	expected := `
# HELP navbat_ticket_transitions_total Ticket lifecycle actions applied, by action.
# TYPE navbat_ticket_transitions_total counter
navbat_ticket_transitions_total{action="CALLED"} 1
navbat_ticket_transitions_total{action="JOINED"} 2
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "navbat_ticket_transitions_total")
	require.NoError(t, err)
}

func TestMetrics_QueueDepth(t *testing.T) {
	m := metrics.New()

	m.QueueDepth("org1", 3)
	m.QueueDepth("org1", 2)
	m.QueueDepth("org2", 5)

	expected := `
# HELP navbat_queue_waiting_tickets Waiting live tickets per organization after the last change.
# TYPE navbat_queue_waiting_tickets gauge
navbat_queue_waiting_tickets{organization="org1"} 2
navbat_queue_waiting_tickets{organization="org2"} 5
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "navbat_queue_waiting_tickets")
	require.NoError(t, err)
}

func TestMetrics_HandlerAndMiddleware(t *testing.T) {
	m := metrics.New()

	ok := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `navbat_http_requests_total{code="201",method="post"} 1`)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
