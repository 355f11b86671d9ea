package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors served on /metrics. Each instance
// owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	SearchesTotal    *prometheus.CounterVec
	SearchDuration   *prometheus.HistogramVec
	ToolCallsTotal   *prometheus.CounterVec
	RateLimitRejects prometheus.Counter
	InFlight         prometheus.Gauge
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shopscout",
				Name:      "searches_total",
				Help:      "Searches handled, by outcome (ok, validation, configuration, connection, upstream)",
			},
			[]string{"outcome"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "shopscout",
				Name:      "search_duration_seconds",
				Help:      "End-to-end search duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shopscout",
				Subsystem: "mcp",
				Name:      "tool_calls_total",
				Help:      "MCP tool invocations made by the agent",
			},
			[]string{"tool", "status"},
		),
		RateLimitRejects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "shopscout",
				Name:      "ratelimit_rejects_total",
				Help:      "Search requests rejected by the per-client rate limiter",
			},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "shopscout",
				Name:      "searches_in_flight",
				Help:      "Searches currently waiting on the agent",
			},
		),
	}
	m.registry.MustRegister(
		m.SearchesTotal,
		m.SearchDuration,
		m.ToolCallsTotal,
		m.RateLimitRejects,
		m.InFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSearch records one finished search.
func (m *Metrics) ObserveSearch(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(outcome).Inc()
	m.SearchDuration.WithLabelValues(outcome).Observe(seconds)
}

// ObserveToolCall records one MCP tool call.
func (m *Metrics) ObserveToolCall(tool string, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}
