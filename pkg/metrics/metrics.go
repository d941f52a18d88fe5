// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all service metrics
type Metrics struct {
	serviceName string
	namespace   string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Store metrics
	StoreOperations        *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Event publishing metrics
	EventsPublished *prometheus.CounterVec

	// Business metrics
	QuantityDecrements *prometheus.CounterVec
	ItemsDeleted       prometheus.Counter
	ItemExports        *prometheus.CounterVec
	ShareTextsComposed prometheus.Counter
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "itemdetail",
	}
}

// New creates a new Metrics instance
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		serviceName: config.ServiceName,
		namespace:   config.Namespace,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "store_operations_total",
			Help:      "Total number of item store operations",
		},
		[]string{"service", "operation", "status"},
	)

	m.StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Item store operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "operation"},
	)

	m.EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "events_published_total",
			Help:      "Total number of item events published",
		},
		[]string{"service", "event_type", "status"},
	)

	m.QuantityDecrements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "quantity_decrements_total",
			Help:      "Total number of decrement commands, by outcome",
		},
		[]string{"service", "outcome"},
	)

	m.ItemsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "items_deleted_total",
			Help:        "Total number of items deleted",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.ItemExports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "item_exports_total",
			Help:      "Total number of item exports, by outcome",
		},
		[]string{"service", "status"},
	)

	m.ShareTextsComposed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "share_texts_composed_total",
			Help:        "Total number of share texts composed",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.StoreOperations,
		m.StoreOperationDuration,
		m.EventsPublished,
		m.QuantityDecrements,
		m.ItemsDeleted,
		m.ItemExports,
		m.ShareTextsComposed,
	)

	return m
}

// RegisterBreakerState exposes a circuit breaker's state as a gauge sampled
// at scrape time: 0 closed, 1 half-open, 2 open.
func (m *Metrics) RegisterBreakerState(breaker string, state func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Name:        "circuit_breaker_state",
			Help:        "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			ConstLabels: prometheus.Labels{"service": m.serviceName, "breaker": breaker},
		},
		state,
	))
}

// Handler returns the HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// RecordStoreOperation records a store call and its outcome
func (m *Metrics) RecordStoreOperation(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperations.WithLabelValues(m.serviceName, operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(m.serviceName, operation).Observe(duration.Seconds())
}

// RecordEventPublished records an event publish attempt
func (m *Metrics) RecordEventPublished(eventType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.EventsPublished.WithLabelValues(m.serviceName, eventType, status).Inc()
}

// RecordDecrement records a decrement command outcome
func (m *Metrics) RecordDecrement(outcome string) {
	m.QuantityDecrements.WithLabelValues(m.serviceName, outcome).Inc()
}

// RecordExport records an export outcome
func (m *Metrics) RecordExport(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ItemExports.WithLabelValues(m.serviceName, status).Inc()
}
