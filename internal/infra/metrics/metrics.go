// Package metrics provides Prometheus instruments for the call service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osa030/avatarcall/internal/domain/call"
)

const namespace = "avatarcall"

// Metrics groups the Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry

	mu        sync.Mutex
	lastState call.State

	CallState         *prometheus.GaugeVec
	Transitions       *prometheus.CounterVec
	Requests          *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	WebhookEvents     *prometheus.CounterVec
	StreamSubscribers prometheus.Gauge
}

// New creates the instruments on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry:  reg,
		lastState: call.StateDisconnected,
		CallState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "call_state",
			Help:      "Current call state (1 for the active state label).",
		}, []string{"state"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_transitions_total",
			Help:      "Call state transitions by target state.",
		}, []string{"state"}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Remote API requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_duration_seconds",
			Help:      "Remote API request latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"operation"}),
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook callbacks received by event type.",
		}, []string{"event_type"}),
		StreamSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Number of clients watching call state.",
		}),
	}
}

// ObserveRequest records one remote API request.
func (m *Metrics) ObserveRequest(operation string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Requests.WithLabelValues(operation, outcome).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Send implements notification.Stream so the recorder can subscribe to state broadcasts.
// Broadcasts that leave the state unchanged do not count as transitions.
func (m *Metrics) Send(snapshot *call.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range []call.State{call.StateDisconnected, call.StateConnecting, call.StateActive, call.StateEnded} {
		v := 0.0
		if s == snapshot.State {
			v = 1
		}
		m.CallState.WithLabelValues(s.String()).Set(v)
	}
	if snapshot.State != m.lastState {
		m.Transitions.WithLabelValues(snapshot.State.String()).Inc()
		m.lastState = snapshot.State
	}
	return nil
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
