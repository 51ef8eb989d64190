package metrics

import "context"

// Noop is a no-op Collector for callers that do not scrape metrics.
type Noop struct{}

// NewNoop creates a no-op collector
func NewNoop() *Noop {
	return &Noop{}
}

// RecordOperation does nothing
func (n *Noop) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
}

// RecordError does nothing
func (n *Noop) RecordError(ctx context.Context, operation string, errorType string) {
}

// SetQueueDepth does nothing
func (n *Noop) SetQueueDepth(ctx context.Context, depth int64) {
}

// SetCacheSize does nothing
func (n *Noop) SetCacheSize(ctx context.Context, size int64) {
}
