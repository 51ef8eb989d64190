package metrics

import "context"

// Collector is the interface for metrics collection.
// Implementations include the Prometheus-backed collector and the no-op
// collector for callers that do not scrape metrics.
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, durationMs int64)
	RecordError(ctx context.Context, operation string, errorType string)
	SetQueueDepth(ctx context.Context, depth int64)
	SetCacheSize(ctx context.Context, size int64)
}
