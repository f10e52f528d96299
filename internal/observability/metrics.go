package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exposed on /metrics.
type Metrics struct {
	registry      *prometheus.Registry
	requestCount  *prometheus.CounterVec
	requestTiming *prometheus.HistogramVec
	errorCount    *prometheus.CounterVec
	sessionEvents *prometheus.CounterVec
}

// NewMetrics initializes collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestTiming: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auth_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_http_errors_total",
			Help: "HTTP errors by route, method and error code.",
		}, []string{"path", "method", "code"}),
		sessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_session_events_total",
			Help: "Session lifecycle events by type and subject type.",
		}, []string{"event", "subject_type"}),
	}
}

// Registry exposes the registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestTiming.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(path, method, code).Inc()
}

// RecordSessionEvent counts a session lifecycle event.
func (m *Metrics) RecordSessionEvent(event, subjectType string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(event, subjectType).Inc()
}
