// Package service decorates a memory store with provenance tracking.
package service

import (
	"context"
	"log/slog"

	"github.com/memtrail/memtrail/pkg/provenance"
	"github.com/memtrail/memtrail/pkg/store"
)

// ProvenanceMetadataKey is the metadata key under which the aggregate is
// attached to returned records when provenance is requested.
const ProvenanceMetadataKey = "_provenance"

// MemoryService wraps a base memory store and decides whether and when to
// track provenance. Tracking is dispatched as an independent, non-blocking
// unit of work; the store operation's result and latency are unaffected by
// tracking success or failure.
type MemoryService struct {
	store store.MemoryStore
	prov  *provenance.OptimizedStorage
	cfg   provenance.Config
	log   *slog.Logger
}

// NewMemoryService creates the decorator. The provenance storage should
// already be started.
func NewMemoryService(st store.MemoryStore, prov *provenance.OptimizedStorage, log *slog.Logger) *MemoryService {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryService{
		store: st,
		prov:  prov,
		cfg:   prov.Storage().Config(),
		log:   log,
	}
}

// StoreOptions configures one store call.
type StoreOptions struct {
	// Actor is credited in the provenance entry. Empty defaults to
	// "unknown".
	Actor string

	// Importance feeds the should-track heuristic.
	Importance float64

	// TrackProvenance, when non-nil, overrides every other tracking
	// decision.
	TrackProvenance *bool
}

// Store writes through to the base store, then (when tracked) enqueues the
// provenance write fire-and-forget.
func (s *MemoryService) Store(ctx context.Context, key, value, namespace string, metadata map[string]any, opts StoreOptions) (*store.Record, error) {
	record, err := s.store.Store(ctx, key, value, namespace, metadata)
	if err != nil {
		return nil, err
	}

	if s.shouldTrack(namespace, opts) {
		actor := opts.Actor
		if actor == "" {
			actor = "unknown"
		}
		s.prov.TrackCreation(record.ID, actor, value, metadata)
	}

	return record, nil
}

// Retrieve reads through to the base store. With showProvenance the
// aggregate, if present, is attached under the "_provenance" metadata key;
// absence of provenance is not an error.
func (s *MemoryService) Retrieve(ctx context.Context, key, namespace string, showProvenance bool) (*store.Record, error) {
	record, err := s.store.Retrieve(ctx, key, namespace)
	if err != nil || record == nil {
		return record, err
	}

	if showProvenance {
		s.enrich(ctx, record)
	}
	return record, nil
}

// Search reads through to the base store, optionally enriching every hit
// with its provenance.
func (s *MemoryService) Search(ctx context.Context, query, namespace string, limit int, showProvenance bool) ([]store.Record, error) {
	records, err := s.store.Search(ctx, query, namespace, limit)
	if err != nil {
		return nil, err
	}

	if showProvenance {
		for i := range records {
			s.enrich(ctx, &records[i])
		}
	}
	return records, nil
}

// TrackEdit records an edit against a memory id, batched and detached.
func (s *MemoryService) TrackEdit(memoryID, actor string, action provenance.Action, note string, opts ...provenance.EntryOption) {
	s.prov.TrackEdit(memoryID, actor, action, note, opts...)
}

// GetProvenance returns the aggregate for a memory id, or (nil, nil) when
// untracked.
func (s *MemoryService) GetProvenance(ctx context.Context, memoryID string) (*provenance.Provenance, error) {
	return s.prov.GetProvenance(ctx, memoryID, true)
}

// shouldTrack applies the tracking decision: an explicit flag wins; then
// the always-tracked namespace set; then global default tracking combined
// with the importance heuristic.
func (s *MemoryService) shouldTrack(namespace string, opts StoreOptions) bool {
	if opts.TrackProvenance != nil {
		return *opts.TrackProvenance
	}
	for _, tracked := range s.cfg.TrackedNamespaces {
		if namespace == tracked {
			return true
		}
	}
	if !s.cfg.DefaultTracking {
		return false
	}
	return s.prov.ShouldTrack(namespace, opts.Importance)
}

// enrich attaches the record's provenance, when present, to its metadata.
// Failures are logged and swallowed; a read never breaks on provenance.
func (s *MemoryService) enrich(ctx context.Context, record *store.Record) {
	p, err := s.prov.GetProvenance(ctx, record.ID, true)
	if err != nil {
		s.log.Warn("provenance enrichment failed",
			"memory_id", record.ID, "error", err)
		return
	}
	if p == nil {
		return
	}
	if record.Metadata == nil {
		record.Metadata = make(map[string]any)
	}
	record.Metadata[ProvenanceMetadataKey] = p
}
