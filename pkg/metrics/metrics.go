package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector provides Prometheus metrics collection for memtrail operations
type MetricsCollector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	queueDepth        prometheus.Gauge
	cacheSize         prometheus.Gauge
	registry          *prometheus.Registry
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memtrail_operations_total",
			Help: "Total number of provenance operations by type and status",
		},
		[]string{"operation", "status"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memtrail_operation_duration_seconds",
			Help:    "Duration of provenance operations by type",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"operation"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memtrail_errors_total",
			Help: "Total number of errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)

	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memtrail_write_queue_depth",
			Help: "Current depth of the provenance write queue",
		},
	)

	cacheSize := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memtrail_cache_size",
			Help: "Current number of cached provenance aggregates",
		},
	)

	registry.MustRegister(operationsTotal)
	registry.MustRegister(operationDuration)
	registry.MustRegister(errorsTotal)
	registry.MustRegister(queueDepth)
	registry.MustRegister(cacheSize)

	return &MetricsCollector{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		errorsTotal:       errorsTotal,
		queueDepth:        queueDepth,
		cacheSize:         cacheSize,
		registry:          registry,
	}
}

// RecordOperation records the completion of an operation
func (m *MetricsCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(float64(durationMs) / 1000.0)
}

// RecordError records an error occurrence
func (m *MetricsCollector) RecordError(ctx context.Context, operation string, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetQueueDepth sets the current write queue depth
func (m *MetricsCollector) SetQueueDepth(ctx context.Context, depth int64) {
	m.queueDepth.Set(float64(depth))
}

// SetCacheSize sets the current aggregate cache size
func (m *MetricsCollector) SetCacheSize(ctx context.Context, size int64) {
	m.cacheSize.Set(float64(size))
}

// Registry returns the Prometheus registry for HTTP exposure
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}
