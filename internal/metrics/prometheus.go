package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the dashboard
type PrometheusMetrics struct {
	// Contract gateway metrics
	RPCRequestsTotal   *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec
	TransactionsTotal  *prometheus.CounterVec

	// Content store metrics
	ContentOperationsTotal   *prometheus.CounterVec
	ContentOperationDuration *prometheus.HistogramVec
	ContentCacheLookupsTotal *prometheus.CounterVec

	// Read path metrics
	EventsDecodedTotal    *prometheus.CounterVec
	UpdatesDroppedTotal   *prometheus.CounterVec
	DashboardBuildsTotal  *prometheus.CounterVec
	DashboardBuildLatency prometheus.Histogram
	StaleLoadsTotal       prometheus.Counter

	// Notification metrics
	WebhookDeliveriesTotal *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etherfund_rpc_requests_total",
				Help: "Total number of JSON-RPC requests made to the node",
			},
			[]string{"method", "status"},
		),

		RPCRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "etherfund_rpc_request_duration_seconds",
				Help:    "Duration of JSON-RPC requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		TransactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etherfund_transactions_total",
				Help: "Contract writes by method and outcome",
			},
			[]string{"method", "status"},
		),

		ContentOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etherfund_content_operations_total",
				Help: "Content store operations by kind and outcome",
			},
			[]string{"operation", "status"},
		),

		ContentOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "etherfund_content_operation_duration_seconds",
				Help:    "Duration of content store operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ContentCacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etherfund_content_cache_lookups_total",
				Help: "Content cache lookups by result",
			},
			[]string{"result"},
		),

		EventsDecodedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etherfund_events_decoded_total",
				Help: "Contract events decoded into records",
			},
			[]string{"event_name", "status"},
		),

		UpdatesDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etherfund_updates_dropped_total",
				Help: "Campaign updates dropped because their body could not be resolved",
			},
			[]string{"reason"},
		),

		DashboardBuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etherfund_dashboard_builds_total",
				Help: "Dashboard read-model builds by outcome",
			},
			[]string{"status"},
		),

		DashboardBuildLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "etherfund_dashboard_build_duration_seconds",
				Help:    "Time spent building a dashboard read model",
				Buckets: prometheus.DefBuckets,
			},
		),

		StaleLoadsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "etherfund_stale_loads_total",
				Help: "Dashboard loads discarded because a newer load superseded them",
			},
		),

		WebhookDeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etherfund_webhook_deliveries_total",
				Help: "Write notifications delivered to webhooks by event and outcome",
			},
			[]string{"event", "status"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etherfund_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "etherfund_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etherfund_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "etherfund_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "etherfund_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "etherfund_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "etherfund_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "etherfund_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// RecordRPCRequest records a JSON-RPC request
func (m *PrometheusMetrics) RecordRPCRequest(method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordTransaction records the outcome of a contract write
func (m *PrometheusMetrics) RecordTransaction(method, status string) {
	m.TransactionsTotal.WithLabelValues(method, status).Inc()
}

// RecordContentOperation records a content store put/get
func (m *PrometheusMetrics) RecordContentOperation(operation, status string, duration time.Duration) {
	m.ContentOperationsTotal.WithLabelValues(operation, status).Inc()
	m.ContentOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheLookup records a content cache hit or miss
func (m *PrometheusMetrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ContentCacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordEventDecoded records a decoded (or rejected) contract event
func (m *PrometheusMetrics) RecordEventDecoded(eventName, status string) {
	m.EventsDecodedTotal.WithLabelValues(eventName, status).Inc()
}

// RecordUpdateDropped records an update dropped from a batch
func (m *PrometheusMetrics) RecordUpdateDropped(reason string) {
	m.UpdatesDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordDashboardBuild records a dashboard build
func (m *PrometheusMetrics) RecordDashboardBuild(status string, duration time.Duration) {
	m.DashboardBuildsTotal.WithLabelValues(status).Inc()
	m.DashboardBuildLatency.Observe(duration.Seconds())
}

// RecordStaleLoad records a superseded dashboard load
func (m *PrometheusMetrics) RecordStaleLoad() {
	m.StaleLoadsTotal.Inc()
}

// RecordWebhookDelivery records the outcome of one webhook delivery
func (m *PrometheusMetrics) RecordWebhookDelivery(event, status string) {
	m.WebhookDeliveriesTotal.WithLabelValues(event, status).Inc()
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}

// StatusLabel maps an error to a metric status label
func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
