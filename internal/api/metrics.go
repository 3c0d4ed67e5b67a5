package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/webthing-core/internal/thing"
)

const metricsNamespace = "webthing"

// Metrics holds the adapter's Prometheus collectors on a private registry.
//
// Besides HTTP and WebSocket figures it implements the publisher sink
// interface, counting property changes, events and action transitions.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	wsConnections prometheus.Gauge
	propertyDirty *prometheus.CounterVec
	events        *prometheus.CounterVec
	actions       *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors, including the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "websocket_connections",
			Help:      "Open WebSocket connections.",
		}),
		propertyDirty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "property_changes_total",
			Help:      "Published property changes by thing.",
		}, []string{"thing"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Queued events by thing and event.",
		}, []string{"thing", "event"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "action_status_total",
			Help:      "Action status transitions by thing, action and status.",
		}, []string{"thing", "action", "status"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.wsConnections,
		m.propertyDirty,
		m.events,
		m.actions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) setConnections(n int) {
	m.wsConnections.Set(float64(n))
}

// PropertiesChanged counts published property changes.
func (m *Metrics) PropertiesChanged(deviceID string, changes []thing.Change) {
	m.propertyDirty.WithLabelValues(deviceID).Add(float64(len(changes)))
}

// EventQueued counts a queued event.
func (m *Metrics) EventQueued(deviceID string, ev thing.EventInstance) {
	m.events.WithLabelValues(deviceID, ev.Name).Inc()
}

// ActionStatus counts an invocation status transition.
func (m *Metrics) ActionStatus(deviceID string, inv *thing.Invocation) {
	m.actions.WithLabelValues(deviceID, inv.Name, string(inv.Status())).Inc()
}
