package provenance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/memtrail/memtrail/pkg/metrics"
	"github.com/memtrail/memtrail/pkg/store"
	"github.com/memtrail/memtrail/pkg/trace"
)

// writeOp is one unit of work for the background writer.
type writeOp struct {
	name     string
	memoryID string
	fn       func(ctx context.Context) error
	// done, when non-nil, receives the op's result exactly once.
	done chan error
}

// Storage persists provenance aggregates and branch snapshots through the
// external memory store, under reserved namespaces.
//
// Every write is enqueued onto an unbounded queue drained by a single
// background worker per Storage instance, so writes within a process are
// serialized and partial writes to the same record never interleave.
// Tracking is best-effort: background write failures are logged, counted
// and dropped, never surfaced to the memory-store caller.
type Storage struct {
	store     store.MemoryStore
	cfg       Config
	log       *slog.Logger
	cache     *provCache
	collector metrics.Collector
	tracer    trace.Exporter

	mu      sync.Mutex
	queue   []writeOp
	stopped bool
	started bool

	wake  chan struct{}
	stopc chan struct{}
	wg    sync.WaitGroup
}

// StorageOption configures optional collaborators on a Storage.
type StorageOption func(*Storage)

// WithLogger sets the logger used for background-write failures.
func WithLogger(log *slog.Logger) StorageOption {
	return func(s *Storage) {
		if log != nil {
			s.log = log
		}
	}
}

// WithCollector sets the metrics collector.
func WithCollector(c metrics.Collector) StorageOption {
	return func(s *Storage) {
		if c != nil {
			s.collector = c
		}
	}
}

// WithTracer sets the trace exporter used as the error sink for detached
// writes.
func WithTracer(t trace.Exporter) StorageOption {
	return func(s *Storage) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewStorage creates a provenance storage over the given memory store.
func NewStorage(st store.MemoryStore, cfg Config, opts ...StorageOption) *Storage {
	cfg = cfg.withDefaults()
	s := &Storage{
		store:     st,
		cfg:       cfg,
		log:       slog.Default(),
		cache:     newProvCache(cfg.CacheTTL, cfg.MaxCacheSize),
		collector: metrics.NewNoop(),
		tracer:    &trace.Noop{},
		wake:      make(chan struct{}, 1),
		stopc:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Storage) Config() Config {
	return s.cfg
}

// Start spawns the background write worker. The context bounds all
// background persistence; cancel it only after Stop.
func (s *Storage) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.worker(ctx)
}

// Stop drains the queue and stops the worker. Writes enqueued after Stop
// are dropped (and logged). Callers that skip Stop on shutdown lose any
// not-yet-durable provenance entries.
func (s *Storage) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	close(s.stopc)
	if started {
		s.wg.Wait()
	}
}

// Flush blocks until every previously enqueued write has been applied.
func (s *Storage) Flush(ctx context.Context) error {
	done := make(chan error, 1)
	if !s.enqueue(writeOp{
		name: "flush",
		fn:   func(context.Context) error { return nil },
		done: done,
	}) {
		return ErrStorageStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrackCreation records the creation of a memory. Non-blocking; the write
// happens on the background worker. If the memory is already tracked a
// revised entry is appended instead, so the chain's created entry is never
// duplicated.
func (s *Storage) TrackCreation(memoryID, creator, content string, metadata map[string]any) {
	s.enqueue(writeOp{
		name:     "track_creation",
		memoryID: memoryID,
		fn: func(ctx context.Context) error {
			p, err := s.loadProvenance(ctx, memoryID)
			if err != nil {
				return err
			}
			if p == nil {
				p = NewProvenance(memoryID)
				p.BaseContent = content
				entry := Entry{Actor: creator, Action: ActionCreated}
				if len(metadata) > 0 {
					entry.Extra = map[string]any{"metadata": metadata}
				}
				p.Append(entry)
			} else {
				p.BaseContent = content
				p.Append(Entry{Actor: creator, Action: ActionRevised, Note: "content updated"})
			}
			return s.persistProvenance(ctx, p)
		},
	})
}

// TrackEdit appends one entry to a memory's chain. Non-blocking; the
// read-modify-write happens on the background worker.
func (s *Storage) TrackEdit(memoryID, actor string, action Action, note string, opts ...EntryOption) {
	entry := Entry{Actor: actor, Action: action, Note: note, Timestamp: time.Now()}
	for _, opt := range opts {
		opt(&entry)
	}
	s.enqueue(writeOp{
		name:     "track_edit",
		memoryID: memoryID,
		fn: func(ctx context.Context) error {
			return s.applyEdits(ctx, memoryID, []Entry{entry})
		},
	})
}

// enqueueEdits schedules a pre-grouped batch of entries for one memory as
// a single read-modify-write cycle. Used by the batch processor.
func (s *Storage) enqueueEdits(memoryID string, entries []Entry) bool {
	return s.enqueue(writeOp{
		name:     "track_edit_batch",
		memoryID: memoryID,
		fn: func(ctx context.Context) error {
			return s.applyEdits(ctx, memoryID, entries)
		},
	})
}

// applyEdits loads the aggregate once, appends all entries, and persists
// once. A memory whose first tracked write is an edit gets a synthetic
// created entry first, keeping chain[0] == created.
func (s *Storage) applyEdits(ctx context.Context, memoryID string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	p, err := s.loadProvenance(ctx, memoryID)
	if err != nil {
		return err
	}
	if p == nil {
		p = NewProvenance(memoryID)
	}
	if len(p.Chain) == 0 && entries[0].Action != ActionCreated {
		p.Append(Entry{
			Actor:     entries[0].Actor,
			Action:    ActionCreated,
			Timestamp: entries[0].Timestamp,
			Note:      "implicit creation",
		})
	}
	for _, e := range entries {
		p.Append(e)
	}
	return s.persistProvenance(ctx, p)
}

// GetProvenance returns the aggregate for a memory, or (nil, nil) when the
// memory is untracked. With useCache the in-memory cache is consulted
// first; misses fall back to durable storage and populate the cache.
// Cached aggregates are immutable once published: mutating paths load
// their own private copy and publish only after the mutation is complete.
func (s *Storage) GetProvenance(ctx context.Context, memoryID string, useCache bool) (*Provenance, error) {
	if !useCache {
		return s.loadProvenance(ctx, memoryID)
	}
	if p, ok := s.cache.Get(memoryID); ok {
		return p, nil
	}
	p, err := s.loadProvenance(ctx, memoryID)
	if err != nil || p == nil {
		return p, err
	}
	s.cache.Put(memoryID, p)
	s.collector.SetCacheSize(ctx, int64(s.cache.Len()))
	return p, nil
}

// CreateBranch creates a named branch of a memory's content. The mutation
// runs on the background worker (serialized with all other writes) but the
// call waits for the result. An untracked memory is lazily given an
// aggregate; the implicit main branch is created on first branching touch.
func (s *Storage) CreateBranch(ctx context.Context, memoryID, branchName, fromBranch, creator, content string) (*Branch, error) {
	if branchName == "" {
		return nil, fmt.Errorf("branch name cannot be empty")
	}
	if fromBranch == "" {
		fromBranch = MainBranch
	}

	var branch *Branch
	err := s.do(ctx, writeOp{
		name:     "create_branch",
		memoryID: memoryID,
		fn: func(ctx context.Context) error {
			p, err := s.loadProvenance(ctx, memoryID)
			if err != nil {
				return err
			}
			if p == nil {
				p = NewProvenance(memoryID)
				p.BaseContent = content
				p.Append(Entry{Actor: creator, Action: ActionCreated, Note: "implicit creation"})
			}
			ensureMainBranch(p)

			if _, exists := p.Branches[branchName]; exists {
				return fmt.Errorf("%w: %s", ErrBranchExists, branchName)
			}
			parent, ok := p.Branches[fromBranch]
			if !ok {
				return fmt.Errorf("%w: %s", ErrBranchNotFound, fromBranch)
			}

			branchContent := content
			if branchContent == "" {
				branchContent = parent.Content
			}
			branch = &Branch{
				Name:         branchName,
				BaseMemoryID: memoryID,
				Content:      branchContent,
				Version:      1,
				CreatedAt:    time.Now(),
				CreatedBy:    creator,
				Active:       true,
				ParentBranch: fromBranch,
			}
			p.Branches[branchName] = branch
			p.Forks = append(p.Forks, branchName)
			p.Append(Entry{
				Actor:  creator,
				Action: ActionForked,
				Note:   fmt.Sprintf("branched %s from %s", branchName, fromBranch),
				Extra:  map[string]any{"branch": branchName, "from_branch": fromBranch},
			})

			if err := s.persistProvenance(ctx, p); err != nil {
				return err
			}
			return s.persistBranch(ctx, branch)
		},
	})
	if err != nil {
		return nil, err
	}
	return branch, nil
}

// GetBranches returns the sorted branch names of a memory. A memory with
// no branches (or no provenance) yields an empty slice.
func (s *Storage) GetBranches(ctx context.Context, memoryID string) ([]string, error) {
	p, err := s.GetProvenance(ctx, memoryID, true)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	names := p.BranchNames()
	sort.Strings(names)
	return names, nil
}

// ensureMainBranch creates the implicit main branch the first time
// branching logic touches a memory with no existing branches.
func ensureMainBranch(p *Provenance) {
	if len(p.Branches) > 0 {
		return
	}
	if p.Branches == nil {
		p.Branches = make(map[string]*Branch)
	}
	p.Branches[MainBranch] = &Branch{
		Name:         MainBranch,
		BaseMemoryID: p.MemoryID,
		Content:      p.BaseContent,
		Version:      1,
		CreatedAt:    time.Now(),
		CreatedBy:    "system",
		Active:       true,
	}
	p.CurrentBranch = MainBranch
}

// do enqueues an op and waits for its result.
func (s *Storage) do(ctx context.Context, op writeOp) error {
	op.done = make(chan error, 1)
	if !s.enqueue(op) {
		return ErrStorageStopped
	}
	select {
	case err := <-op.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue appends an op to the queue. Never blocks; the queue is bounded
// only by memory. Returns false when the storage is stopped.
func (s *Storage) enqueue(op writeOp) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.log.Warn("provenance write dropped, storage stopped",
			"op", op.name, "memory_id", op.memoryID)
		return false
	}
	s.queue = append(s.queue, op)
	depth := len(s.queue)
	s.mu.Unlock()

	s.collector.SetQueueDepth(context.Background(), int64(depth))
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// worker drains the write queue sequentially until Stop. On shutdown the
// remaining queue is drained before returning, so Stop never abandons
// already-enqueued writes.
func (s *Storage) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.wake:
			s.drainQueue(ctx)
		case <-s.stopc:
			s.drainQueue(ctx)
			return
		}
	}
}

// drainQueue pops and runs every queued op.
func (s *Storage) drainQueue(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			s.collector.SetQueueDepth(ctx, 0)
			return
		}
		op := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.runOp(ctx, op)
	}
}

// runOp executes one op, recording duration and sinking any error into the
// log, metrics and trace exporter. Errors never propagate past here unless
// a caller is explicitly waiting on the op.
func (s *Storage) runOp(ctx context.Context, op writeOp) {
	start := time.Now()
	err := op.fn(ctx)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		errType := ClassifyError(err)
		s.log.Error("provenance background write failed",
			"op", op.name, "memory_id", op.memoryID, "error", err)
		s.collector.RecordError(ctx, op.name, errType)
		s.tracer.Export(ctx, &trace.Record{
			Timestamp:  start,
			Operation:  op.name,
			MemoryID:   op.memoryID,
			DurationMs: elapsed.Milliseconds(),
			Status:     status,
			ErrorType:  errType,
		})
	}
	s.collector.RecordOperation(ctx, op.name, status, elapsed.Milliseconds())

	if op.done != nil {
		op.done <- err
	}
}

// provKey and branchKey build the reserved-namespace storage keys.
func provKey(memoryID string) string {
	return "prov:" + memoryID
}

func branchKey(memoryID, branchName string) string {
	return "branch:" + memoryID + ":" + branchName
}

// persistProvenance writes the aggregate into the reserved provenance
// namespace and publishes it to the cache. Callers must be done mutating p
// before calling: once published the aggregate is shared with readers.
func (s *Storage) persistProvenance(ctx context.Context, p *Provenance) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal provenance for %s: %w", p.MemoryID, err)
	}
	if _, err := s.store.Store(ctx, provKey(p.MemoryID), string(payload), s.cfg.ProvenanceNamespace, nil); err != nil {
		return fmt.Errorf("failed to persist provenance for %s: %w", p.MemoryID, err)
	}
	s.cache.Put(p.MemoryID, p)
	s.collector.SetCacheSize(ctx, int64(s.cache.Len()))
	return nil
}

// persistBranch writes a branch snapshot into the reserved branch namespace.
func (s *Storage) persistBranch(ctx context.Context, b *Branch) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal branch %s: %w", b.Name, err)
	}
	if _, err := s.store.Store(ctx, branchKey(b.BaseMemoryID, b.Name), string(payload), s.cfg.BranchNamespace, nil); err != nil {
		return fmt.Errorf("failed to persist branch %s: %w", b.Name, err)
	}
	return nil
}

// loadProvenance reads the aggregate from durable storage, never touching
// the cache: each call returns a private copy, so read-modify-write paths
// may mutate the result freely before persistProvenance publishes it.
// A malformed record is logged and treated as absent rather than crashing
// the caller.
func (s *Storage) loadProvenance(ctx context.Context, memoryID string) (*Provenance, error) {
	record, err := s.store.Retrieve(ctx, provKey(memoryID), s.cfg.ProvenanceNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to load provenance for %s: %w", memoryID, err)
	}
	if record == nil {
		return nil, nil
	}

	var p Provenance
	if err := json.Unmarshal([]byte(record.Value), &p); err != nil {
		s.log.Error("malformed provenance record, treating as absent",
			"memory_id", memoryID, "error", err)
		s.collector.RecordError(ctx, "load_provenance", ErrTypeValidation)
		return nil, nil
	}
	if p.Branches == nil {
		p.Branches = make(map[string]*Branch)
	}
	if p.CurrentBranch == "" {
		p.CurrentBranch = MainBranch
	}
	return &p, nil
}
