package provenance

import (
	"context"
	"strings"
	"time"
)

// OptimizedStorage composes the storage with the batch processor, lazy
// loading and the performance monitor, and applies the should-track
// heuristic. It decouples tracking cost from the caller's hot path: edits
// are buffered and grouped before they hit storage.
type OptimizedStorage struct {
	storage *Storage
	batch   *BatchProcessor
	monitor *PerformanceMonitor
	cfg     Config
}

// NewOptimizedStorage wires the performance wrapper around a storage.
func NewOptimizedStorage(storage *Storage, monitor *PerformanceMonitor) *OptimizedStorage {
	if monitor == nil {
		monitor = NewPerformanceMonitor(storage.cfg.SlowOpThreshold, storage.log, storage.collector, storage.tracer)
	}
	return &OptimizedStorage{
		storage: storage,
		batch:   NewBatchProcessor(storage, storage.log),
		monitor: monitor,
		cfg:     storage.cfg,
	}
}

// Start starts the underlying storage worker and the batch flush loop.
func (o *OptimizedStorage) Start(ctx context.Context) {
	o.storage.Start(ctx)
	o.batch.Start(ctx)
}

// Stop flushes the batch buffer, then drains and stops the storage worker.
// Order matters: batched edits must reach the queue before it drains.
func (o *OptimizedStorage) Stop() {
	o.batch.Stop()
	o.storage.Stop()
}

// ShouldTrack decides whether a write in the namespace deserves
// provenance. Temporary/session-like namespaces are never tracked; the
// configured important namespaces are always tracked regardless of
// importance; everything else must clear the importance threshold.
func (o *OptimizedStorage) ShouldTrack(namespace string, importance float64) bool {
	for _, prefix := range o.cfg.SkipNamespacePrefixes {
		if strings.HasPrefix(namespace, prefix) {
			return false
		}
	}
	for _, tracked := range o.cfg.TrackedNamespaces {
		if namespace == tracked {
			return true
		}
	}
	return importance >= o.cfg.ImportanceThreshold
}

// TrackCreation forwards to storage, timed. Creations bypass the batch
// buffer: they must establish the aggregate before any buffered edits for
// the same memory land.
func (o *OptimizedStorage) TrackCreation(memoryID, creator, content string, metadata map[string]any) {
	start := time.Now()
	o.storage.TrackCreation(memoryID, creator, content, metadata)
	o.monitor.Record(context.Background(), "track_creation", time.Since(start), nil)
}

// TrackEdit buffers the edit in the batch processor, timed.
func (o *OptimizedStorage) TrackEdit(memoryID, actor string, action Action, note string, opts ...EntryOption) {
	start := time.Now()
	entry := Entry{Actor: actor, Action: action, Note: note, Timestamp: time.Now()}
	for _, opt := range opts {
		opt(&entry)
	}
	o.batch.Add(memoryID, entry)
	o.monitor.Record(context.Background(), "track_edit", time.Since(start), nil)
}

// GetProvenance reads through the underlying storage, timed.
func (o *OptimizedStorage) GetProvenance(ctx context.Context, memoryID string, useCache bool) (*Provenance, error) {
	var p *Provenance
	err := o.monitor.Time(ctx, "get_provenance", func() error {
		var err error
		p, err = o.storage.GetProvenance(ctx, memoryID, useCache)
		return err
	})
	return p, err
}

// Lazy returns a lazy loader for the memory id.
func (o *OptimizedStorage) Lazy(memoryID string) *LazyLoader {
	return NewLazyLoader(o.storage, memoryID)
}

// Flush forces the batch buffer and the write queue to drain. Mostly
// useful in tests and at checkpoints.
func (o *OptimizedStorage) Flush(ctx context.Context) error {
	o.batch.Flush()
	return o.storage.Flush(ctx)
}

// Storage exposes the underlying storage for branch and merge operations.
func (o *OptimizedStorage) Storage() *Storage {
	return o.storage
}

// Monitor exposes the performance monitor.
func (o *OptimizedStorage) Monitor() *PerformanceMonitor {
	return o.monitor
}
