package provenance

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// pendingEdit is one buffered edit awaiting a flush.
type pendingEdit struct {
	memoryID string
	entry    Entry
}

// BatchProcessor accumulates pending edits and flushes them when the
// buffer reaches the configured size or the periodic timer elapses,
// whichever comes first. On flush, edits are grouped by memory id so N
// edits to the same memory collapse into a single read-modify-write cycle
// against storage. The mutex guards only buffer mutation, never the flush.
type BatchProcessor struct {
	storage  *Storage
	interval time.Duration
	maxSize  int
	log      *slog.Logger

	mu      sync.Mutex
	pending []pendingEdit

	stopc   chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewBatchProcessor creates a batch processor over the given storage.
func NewBatchProcessor(storage *Storage, log *slog.Logger) *BatchProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &BatchProcessor{
		storage:  storage,
		interval: storage.cfg.BatchInterval,
		maxSize:  storage.cfg.BatchSize,
		log:      log,
		stopc:    make(chan struct{}),
	}
}

// Start spawns the periodic flush loop.
func (b *BatchProcessor) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.loop(ctx)
}

// Stop halts the flush loop and flushes any buffered-but-unflushed edits
// before returning.
func (b *BatchProcessor) Stop() {
	b.mu.Lock()
	started := b.started
	b.started = false
	b.mu.Unlock()
	if !started {
		return
	}

	close(b.stopc)
	b.wg.Wait()
	b.Flush()
}

// Add buffers one edit for a memory. Triggers an immediate flush when the
// buffer reaches the configured size.
func (b *BatchProcessor) Add(memoryID string, entry Entry) {
	b.mu.Lock()
	b.pending = append(b.pending, pendingEdit{memoryID: memoryID, entry: entry})
	full := len(b.pending) >= b.maxSize
	var batch []pendingEdit
	if full {
		batch = b.pending
		b.pending = nil
	}
	b.mu.Unlock()

	if full {
		b.flush(batch)
	}
}

// Flush takes the current buffer and dispatches it.
func (b *BatchProcessor) Flush() {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	b.flush(batch)
}

// Pending returns the current buffer length.
func (b *BatchProcessor) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *BatchProcessor) loop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Flush()
		case <-ctx.Done():
			return
		case <-b.stopc:
			return
		}
	}
}

// flush groups the batch by memory id, preserving per-memory enqueue
// order, and enqueues one grouped write per memory.
func (b *BatchProcessor) flush(batch []pendingEdit) {
	if len(batch) == 0 {
		return
	}

	grouped := make(map[string][]Entry)
	order := make([]string, 0, len(batch))
	for _, op := range batch {
		if _, seen := grouped[op.memoryID]; !seen {
			order = append(order, op.memoryID)
		}
		grouped[op.memoryID] = append(grouped[op.memoryID], op.entry)
	}

	for _, memoryID := range order {
		if !b.storage.enqueueEdits(memoryID, grouped[memoryID]) {
			b.log.Warn("batch flush dropped, storage stopped",
				"memory_id", memoryID, "entries", len(grouped[memoryID]))
		}
	}
}
