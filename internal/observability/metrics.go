package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions prometheus.Gauge
	SessionEvents  *prometheus.CounterVec
	RelayMessages  *prometheus.CounterVec
	StreamFaults   prometheus.Counter
	SetupRequests  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments on reg. A nil reg gets a private
// registry, which keeps repeated construction in tests from colliding.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of open live interview sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		RelayMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_messages_total",
			Help:      "Relayed messages by direction and mime type.",
		}, []string{"direction", "mime_type"}),
		StreamFaults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_faults_total",
			Help:      "Agent event streams that ended with a fault.",
		}),
		SetupRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setup_requests_total",
			Help:      "Interview setup requests by outcome.",
		}, []string{"outcome"}),
		gatherer: gatherer,
	}
}

// ObserveRelay counts one relayed message. direction is "inbound" or "outbound".
func (m *Metrics) ObserveRelay(direction, mimeType string) {
	m.RelayMessages.WithLabelValues(direction, mimeType).Inc()
}

// Handler serves the registry the metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
