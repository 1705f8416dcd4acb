package prometheus

import (
	"net/http"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentcall"

// RelayMetrics implements port.RelayMetrics on a private registry.
type RelayMetrics struct {
	registry    *prometheus.Registry
	connections prometheus.Gauge
	forwarded   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

func NewRelayMetrics() *RelayMetrics {
	m := &RelayMetrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Currently attached relay connections.",
		}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_forwarded_total",
			Help:      "Events forwarded to at least one peer, by event name.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_dropped_total",
			Help:      "Events not delivered, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.connections, m.forwarded, m.dropped)
	return m
}

func (m *RelayMetrics) ConnectionAttached() {
	m.connections.Inc()
}

func (m *RelayMetrics) ConnectionDetached() {
	m.connections.Dec()
}

func (m *RelayMetrics) EventForwarded(name domain.EventName) {
	m.forwarded.WithLabelValues(string(name)).Inc()
}

func (m *RelayMetrics) EventDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *RelayMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *RelayMetrics) Registry() *prometheus.Registry {
	return m.registry
}
