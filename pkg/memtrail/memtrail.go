// Package memtrail provides a provenance-tracked memory bridge for AI
// assistants: a git-like history layer over opaque memory records, with
// branching, merging and chain compaction, kept off the store/retrieve
// hot path.
package memtrail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/memtrail/memtrail/pkg/metrics"
	"github.com/memtrail/memtrail/pkg/provenance"
	"github.com/memtrail/memtrail/pkg/service"
	"github.com/memtrail/memtrail/pkg/store"
	"github.com/memtrail/memtrail/pkg/trace"
)

// Config holds configuration for a Memtrail instance.
type Config struct {
	// DBPath is the SQLite database path used when Store is nil.
	// ":memory:" works for tests. Default: "memtrail.db".
	DBPath string

	// Store, when set, replaces the built-in SQLite store.
	Store store.MemoryStore

	// Provenance tunes the provenance subsystem. Zero fields take
	// defaults; use provenance.DefaultConfig() as the baseline.
	Provenance provenance.Config

	// Merger replaces the conservative merger (which reports conflict for
	// any divergence).
	Merger provenance.Merger

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to the no-op collector. Pass metrics.NewCollector()
	// to scrape with Prometheus.
	Metrics metrics.Collector

	// TraceFile, when set, exports operation traces as JSON Lines
	// (requires the tracing build tag to produce output).
	TraceFile string
}

// Memtrail is the main entry point for the memory bridge.
type Memtrail struct {
	config  Config
	sqlite  *store.SQLiteStore
	storage *provenance.Storage
	prov    *provenance.OptimizedStorage
	ops     *provenance.Operations
	service *service.MemoryService
	tracer  trace.Exporter
}

// New creates a Memtrail instance and starts its background workers.
// Call Close to flush and stop them.
func New(ctx context.Context, cfg Config) (*Memtrail, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}

	m := &Memtrail{config: cfg}

	var tracer trace.Exporter = &trace.Noop{}
	if cfg.TraceFile != "" {
		var err error
		tracer, err = trace.NewFileExporter(cfg.TraceFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
	}
	m.tracer = tracer

	backing := cfg.Store
	if backing == nil {
		dbPath := cfg.DBPath
		if dbPath == "" {
			dbPath = "memtrail.db"
		}
		sqlite, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			tracer.Close()
			return nil, err
		}
		m.sqlite = sqlite
		backing = sqlite
	}

	m.storage = provenance.NewStorage(backing, cfg.Provenance,
		provenance.WithLogger(cfg.Logger),
		provenance.WithCollector(cfg.Metrics),
		provenance.WithTracer(tracer),
	)
	m.prov = provenance.NewOptimizedStorage(m.storage, nil)
	m.prov.Start(ctx)

	m.ops = provenance.NewOperations(m.storage, cfg.Merger, cfg.Logger)
	m.service = service.NewMemoryService(backing, m.prov, cfg.Logger)

	return m, nil
}

// Service returns the provenance-tracking memory service.
func (m *Memtrail) Service() *service.MemoryService {
	return m.service
}

// Operations returns the branch merge / squash operations layer.
func (m *Memtrail) Operations() *provenance.Operations {
	return m.ops
}

// Provenance returns the optimized provenance storage.
func (m *Memtrail) Provenance() *provenance.OptimizedStorage {
	return m.prov
}

// Flush forces all buffered provenance writes to become durable.
func (m *Memtrail) Flush(ctx context.Context) error {
	return m.prov.Flush(ctx)
}

// Close flushes buffered provenance writes, stops the background workers
// and releases resources. Skipping Close loses the most recent
// not-yet-durable provenance entries.
func (m *Memtrail) Close() error {
	m.prov.Stop()

	var firstErr error
	if err := m.tracer.Close(); err != nil {
		firstErr = err
	}
	if m.sqlite != nil {
		if err := m.sqlite.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
