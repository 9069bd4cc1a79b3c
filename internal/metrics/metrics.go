// Package metrics exposes Prometheus instrumentation for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the relay.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	activeSessions prometheus.Gauge
	sessionsTotal  prometheus.Counter
	authFailures   *prometheus.CounterVec

	// Broadcast metrics
	broadcasts   *prometheus.CounterVec
	deliveries   prometheus.Counter
	sendFailures prometheus.Counter
	fanout       prometheus.Histogram

	// Listener metrics
	acceptErrors prometheus.Counter
}

// New creates a metrics set on its own registry, including Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wirerelay_active_sessions",
			Help: "Current number of registered sessions",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wirerelay_sessions_total",
			Help: "Total number of sessions that completed authentication",
		}),
		authFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wirerelay_auth_failures_total",
			Help: "Rejected handshakes by reason",
		}, []string{"reason"}),
		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wirerelay_broadcasts_total",
			Help: "Broadcasts issued, by event kind (arrival, departure, chat, directory)",
		}, []string{"kind"}),
		deliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "wirerelay_deliveries_total",
			Help: "Units successfully written to recipients",
		}),
		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "wirerelay_send_failures_total",
			Help: "Failed writes to broadcast recipients",
		}),
		fanout: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wirerelay_broadcast_fanout",
			Help:    "Number of recipients per broadcast",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		acceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "wirerelay_accept_errors_total",
			Help: "Listener accept errors",
		}),
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetActiveSessions records the current registry size.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// RecordSessionStarted counts a session that passed authentication.
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
}

// RecordAuthFailure counts a rejected handshake.
func (m *Metrics) RecordAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// RecordBroadcast counts one broadcast and its outcome.
func (m *Metrics) RecordBroadcast(kind string, recipients, delivered, failed int) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(kind).Inc()
	m.fanout.Observe(float64(recipients))
	m.deliveries.Add(float64(delivered))
	m.sendFailures.Add(float64(failed))
}

// RecordAcceptError counts a listener accept failure.
func (m *Metrics) RecordAcceptError() {
	if m == nil {
		return
	}
	m.acceptErrors.Inc()
}
