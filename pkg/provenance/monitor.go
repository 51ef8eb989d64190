package provenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/memtrail/memtrail/pkg/metrics"
	"github.com/memtrail/memtrail/pkg/trace"
)

// OperationStats aggregates durations for one operation name.
type OperationStats struct {
	Count int64
	AvgMs float64
	MinMs int64
	MaxMs int64
}

type opStats struct {
	count   int64
	totalMs int64
	minMs   int64
	maxMs   int64
}

// PerformanceMonitor records per-operation durations, logs operations
// exceeding the slow threshold, and feeds the metrics collector and trace
// exporter.
type PerformanceMonitor struct {
	slowThreshold time.Duration
	log           *slog.Logger
	collector     metrics.Collector
	tracer        trace.Exporter

	mu    sync.Mutex
	stats map[string]*opStats
}

// NewPerformanceMonitor creates a monitor. Nil collaborators default to
// slog.Default, the no-op collector and the no-op exporter.
func NewPerformanceMonitor(slowThreshold time.Duration, log *slog.Logger, collector metrics.Collector, tracer trace.Exporter) *PerformanceMonitor {
	if log == nil {
		log = slog.Default()
	}
	if collector == nil {
		collector = metrics.NewNoop()
	}
	if tracer == nil {
		tracer = &trace.Noop{}
	}
	return &PerformanceMonitor{
		slowThreshold: slowThreshold,
		log:           log,
		collector:     collector,
		tracer:        tracer,
		stats:         make(map[string]*opStats),
	}
}

// Record registers one completed operation.
func (m *PerformanceMonitor) Record(ctx context.Context, operation string, elapsed time.Duration, err error) {
	ms := elapsed.Milliseconds()

	m.mu.Lock()
	st, ok := m.stats[operation]
	if !ok {
		st = &opStats{minMs: ms, maxMs: ms}
		m.stats[operation] = st
	}
	st.count++
	st.totalMs += ms
	if ms < st.minMs {
		st.minMs = ms
	}
	if ms > st.maxMs {
		st.maxMs = ms
	}
	m.mu.Unlock()

	status := "success"
	if err != nil {
		status = "error"
		m.collector.RecordError(ctx, operation, ClassifyError(err))
	}
	m.collector.RecordOperation(ctx, operation, status, ms)

	if m.slowThreshold > 0 && elapsed > m.slowThreshold {
		m.log.Warn("slow provenance operation",
			"operation", operation, "duration_ms", ms,
			"threshold_ms", m.slowThreshold.Milliseconds())
		m.tracer.Export(ctx, &trace.Record{
			Timestamp:  time.Now().Add(-elapsed),
			Operation:  operation,
			DurationMs: ms,
			Status:     status,
			Detail:     map[string]any{"slow": true},
		})
	}
}

// Time runs fn, recording its duration under the operation name.
func (m *PerformanceMonitor) Time(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.Record(ctx, operation, time.Since(start), err)
	return err
}

// Stats returns the aggregate for one operation name.
func (m *PerformanceMonitor) Stats(operation string) (OperationStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stats[operation]
	if !ok {
		return OperationStats{}, false
	}
	return exportStats(st), true
}

// AllStats returns aggregates for every recorded operation name.
func (m *PerformanceMonitor) AllStats() map[string]OperationStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]OperationStats, len(m.stats))
	for name, st := range m.stats {
		out[name] = exportStats(st)
	}
	return out
}

func exportStats(st *opStats) OperationStats {
	return OperationStats{
		Count: st.count,
		AvgMs: float64(st.totalMs) / float64(st.count),
		MinMs: st.minMs,
		MaxMs: st.maxMs,
	}
}
