// Package metrics exposes queue activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/navbat/queue-backend/internal/core/domain"
	"github.com/navbat/queue-backend/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "navbat"

// Metrics holds the queue collectors and the registry they live in.
type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	depth       *prometheus.GaugeVec
	requests    *prometheus.CounterVec
}

var _ ports.QueueMetrics = (*Metrics)(nil)

// New creates a registry with the queue collectors plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_transitions_total",
			Help:      "Ticket lifecycle actions applied, by action.",
		}, []string{"action"}),
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_waiting_tickets",
			Help:      "Waiting live tickets per organization after the last change.",
		}, []string{"organization"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, by method and status code.",
		}, []string{"method", "code"}),
	}

	m.registry.MustRegister(
		m.transitions,
		m.depth,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// TicketTransitioned counts one applied lifecycle action.
func (m *Metrics) TicketTransitioned(action domain.TicketAction) {
	m.transitions.WithLabelValues(string(action)).Inc()
}

// QueueDepth records the organization's current live waiting count.
func (m *Metrics) QueueDepth(orgID string, waiting int) {
	m.depth.WithLabelValues(orgID).Set(float64(waiting))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts every request by method and status code.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.requests, next)
}
