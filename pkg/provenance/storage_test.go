package provenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/memtrail/memtrail/pkg/store"
)

func newTestStorage(t *testing.T, cfg Config, opts ...StorageOption) (*Storage, *store.InMemoryStore) {
	t.Helper()
	backing := store.NewInMemoryStore()
	s := NewStorage(backing, cfg, opts...)
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	return s, backing
}

// TestStorage_TrackCreation verifies the chain starts with a created entry
// at version 1.
func TestStorage_TrackCreation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorage(t, DefaultConfig())

	s.TrackCreation("m1", "Apollo", "first light", map[string]any{"kind": "note"})
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	p, err := s.GetProvenance(ctx, "m1", true)
	if err != nil {
		t.Fatalf("GetProvenance failed: %v", err)
	}
	if p == nil {
		t.Fatal("GetProvenance returned nil for tracked memory")
	}
	if len(p.Chain) != 1 {
		t.Fatalf("Chain length: got %d, want 1", len(p.Chain))
	}
	if p.Chain[0].Action != ActionCreated {
		t.Errorf("chain[0].Action: got %s, want created", p.Chain[0].Action)
	}
	if p.Chain[0].Actor != "Apollo" {
		t.Errorf("chain[0].Actor: got %s, want Apollo", p.Chain[0].Actor)
	}
	if p.Version != 1 {
		t.Errorf("Version: got %d, want 1", p.Version)
	}
	if p.BaseContent != "first light" {
		t.Errorf("BaseContent: got %q", p.BaseContent)
	}
}

// TestStorage_TrackCreationTwice verifies re-creation appends a revised
// entry instead of resetting the chain.
func TestStorage_TrackCreationTwice(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorage(t, DefaultConfig())

	s.TrackCreation("m1", "Apollo", "v1", nil)
	s.TrackCreation("m1", "Apollo", "v2", nil)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	p, err := s.GetProvenance(ctx, "m1", true)
	if err != nil {
		t.Fatalf("GetProvenance failed: %v", err)
	}
	if len(p.Chain) != 2 {
		t.Fatalf("Chain length: got %d, want 2", len(p.Chain))
	}
	if p.Chain[0].Action != ActionCreated {
		t.Errorf("chain[0].Action: got %s, want created", p.Chain[0].Action)
	}
	if p.Chain[1].Action != ActionRevised {
		t.Errorf("chain[1].Action: got %s, want revised", p.Chain[1].Action)
	}
	if p.BaseContent != "v2" {
		t.Errorf("BaseContent: got %q, want v2", p.BaseContent)
	}
}

// TestStorage_TrackEdit verifies each edit appends exactly one entry and
// bumps the version by exactly 1.
func TestStorage_TrackEdit(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorage(t, DefaultConfig())

	s.TrackCreation("m1", "Apollo", "content", nil)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		s.TrackEdit("m1", "Rhetor", ActionRevised, fmt.Sprintf("edit %d", i))
		if err := s.Flush(ctx); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}

		p, err := s.GetProvenance(ctx, "m1", true)
		if err != nil {
			t.Fatalf("GetProvenance failed: %v", err)
		}
		if len(p.Chain) != 1+i {
			t.Errorf("Chain length after edit %d: got %d, want %d", i, len(p.Chain), 1+i)
		}
		if p.Version != 1+i {
			t.Errorf("Version after edit %d: got %d, want %d", i, p.Version, 1+i)
		}
	}
}

// TestStorage_TrackEditOptions verifies the optional entry fields.
func TestStorage_TrackEditOptions(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorage(t, DefaultConfig())

	s.TrackCreation("m1", "Apollo", "content", nil)
	s.TrackEdit("m1", "Rhetor", ActionMerged, "merged ideas",
		WithRelated("m2", "m3"),
		WithContext("dream synthesis"),
		WithConfidence(0.8),
		WithExtra("source", "overnight"),
	)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	p, _ := s.GetProvenance(ctx, "m1", true)
	e := p.Chain[1]
	if len(e.With) != 2 || e.With[0] != "m2" {
		t.Errorf("With: got %v", e.With)
	}
	if e.Context != "dream synthesis" {
		t.Errorf("Context: got %q", e.Context)
	}
	if e.Confidence == nil || *e.Confidence != 0.8 {
		t.Errorf("Confidence: got %v", e.Confidence)
	}
	if e.Extra["source"] != "overnight" {
		t.Errorf("Extra: got %v", e.Extra)
	}
}

// TestStorage_EditBeforeCreation verifies a memory whose first tracked
// write is an edit still gets a created entry at chain[0].
func TestStorage_EditBeforeCreation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorage(t, DefaultConfig())

	s.TrackEdit("m1", "Rhetor", ActionRevised, "first touch")
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	p, _ := s.GetProvenance(ctx, "m1", true)
	if p == nil {
		t.Fatal("GetProvenance returned nil")
	}
	if len(p.Chain) != 2 {
		t.Fatalf("Chain length: got %d, want 2", len(p.Chain))
	}
	if p.Chain[0].Action != ActionCreated {
		t.Errorf("chain[0].Action: got %s, want created", p.Chain[0].Action)
	}
}

// TestStorage_GetProvenanceUntracked verifies untracked memories read as
// absent, not as errors.
func TestStorage_GetProvenanceUntracked(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorage(t, DefaultConfig())

	p, err := s.GetProvenance(ctx, "nobody", true)
	if err != nil {
		t.Fatalf("GetProvenance errored for untracked memory: %v", err)
	}
	if p != nil {
		t.Errorf("Expected nil aggregate, got %+v", p)
	}
}

// TestStorage_CreateBranch verifies branch creation, the implicit main
// branch and the forked chain entry.
func TestStorage_CreateBranch(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	s, backing := newTestStorage(t, cfg)

	s.TrackCreation("m1", "Apollo", "base content", nil)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	branch, err := s.CreateBranch(ctx, "m1", "experiment", "", "Rhetor", "divergent content")
	if err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if branch.ParentBranch != MainBranch {
		t.Errorf("ParentBranch: got %s, want main", branch.ParentBranch)
	}

	p, _ := s.GetProvenance(ctx, "m1", true)
	main, ok := p.Branches[MainBranch]
	if !ok {
		t.Fatal("Implicit main branch not created")
	}
	if main.Content != "base content" {
		t.Errorf("Main content: got %q, want base content", main.Content)
	}

	last := p.Latest()
	if last.Action != ActionForked {
		t.Errorf("Latest action: got %s, want forked", last.Action)
	}
	if len(p.Forks) != 1 || p.Forks[0] != "experiment" {
		t.Errorf("Forks: got %v, want [experiment]", p.Forks)
	}

	// Branch snapshot persisted in the reserved branch namespace.
	rec, err := backing.Retrieve(ctx, "branch:m1:experiment", cfg.BranchNamespace)
	if err != nil || rec == nil {
		t.Errorf("Branch snapshot not persisted: rec=%v err=%v", rec, err)
	}

	// Duplicate name rejected.
	if _, err := s.CreateBranch(ctx, "m1", "experiment", "", "Rhetor", "x"); !errors.Is(err, ErrBranchExists) {
		t.Errorf("Duplicate branch: got %v, want ErrBranchExists", err)
	}

	// Unknown source branch rejected.
	if _, err := s.CreateBranch(ctx, "m1", "another", "ghost", "Rhetor", "x"); !errors.Is(err, ErrBranchNotFound) {
		t.Errorf("Unknown from branch: got %v, want ErrBranchNotFound", err)
	}
}

// TestStorage_GetBranches verifies the sorted branch name listing.
func TestStorage_GetBranches(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorage(t, DefaultConfig())

	s.TrackCreation("m1", "Apollo", "base", nil)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if _, err := s.CreateBranch(ctx, "m1", "zeta", "", "Apollo", ""); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if _, err := s.CreateBranch(ctx, "m1", "alpha", "", "Apollo", ""); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}

	names, err := s.GetBranches(ctx, "m1")
	if err != nil {
		t.Fatalf("GetBranches failed: %v", err)
	}
	want := []string{"alpha", "main", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("Branch names: got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Branch names[%d]: got %s, want %s", i, names[i], want[i])
		}
	}
}

// TestStorage_StopDrains verifies Stop applies every already-enqueued
// write before returning.
func TestStorage_StopDrains(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	backing := store.NewInMemoryStore()
	s := NewStorage(backing, cfg)
	s.Start(ctx)

	s.TrackCreation("m1", "Apollo", "content", nil)
	for i := 0; i < 20; i++ {
		s.TrackEdit("m1", "Rhetor", ActionRevised, fmt.Sprintf("edit %d", i))
	}
	s.Stop()

	// Read back through a fresh storage over the same backing store.
	s2 := NewStorage(backing, cfg)
	p, err := s2.GetProvenance(ctx, "m1", false)
	if err != nil {
		t.Fatalf("GetProvenance failed: %v", err)
	}
	if p == nil {
		t.Fatal("Nothing persisted before Stop returned")
	}
	if len(p.Chain) != 21 {
		t.Errorf("Chain length after drain: got %d, want 21", len(p.Chain))
	}
}

// TestStorage_EnqueueAfterStop verifies writes after Stop are dropped
// without panicking.
func TestStorage_EnqueueAfterStop(t *testing.T) {
	s := NewStorage(store.NewInMemoryStore(), DefaultConfig())
	s.Start(context.Background())
	s.Stop()

	s.TrackEdit("m1", "Rhetor", ActionRevised, "too late")
	if err := s.Flush(context.Background()); !errors.Is(err, ErrStorageStopped) {
		t.Errorf("Flush after Stop: got %v, want ErrStorageStopped", err)
	}
}

// TestStorage_MalformedRecord verifies a corrupt persisted aggregate reads
// as absent instead of failing.
func TestStorage_MalformedRecord(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	s, backing := newTestStorage(t, cfg)

	if _, err := backing.Store(ctx, "prov:m1", "{not json", cfg.ProvenanceNamespace, nil); err != nil {
		t.Fatalf("Seeding malformed record failed: %v", err)
	}

	p, err := s.GetProvenance(ctx, "m1", false)
	if err != nil {
		t.Fatalf("GetProvenance errored on malformed record: %v", err)
	}
	if p != nil {
		t.Errorf("Expected absent result for malformed record, got %+v", p)
	}
}

// TestStorage_CacheFallback verifies a cache miss falls back to durable
// storage and populates the cache.
func TestStorage_CacheFallback(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	backing := store.NewInMemoryStore()

	writer := NewStorage(backing, cfg)
	writer.Start(ctx)
	writer.TrackCreation("m1", "Apollo", "content", nil)
	if err := writer.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	writer.Stop()

	reader := NewStorage(backing, cfg)
	p, err := reader.GetProvenance(ctx, "m1", true)
	if err != nil {
		t.Fatalf("GetProvenance failed: %v", err)
	}
	if p == nil {
		t.Fatal("Cache-miss fallback returned nil")
	}
	if reader.cache.Len() != 1 {
		t.Errorf("Cache not populated after fallback: len %d", reader.cache.Len())
	}
}

// TestStorage_ConcurrentReadsDuringEdits hammers cached reads while the
// worker applies a stream of edits. Published aggregates must never be
// mutated in place, so readers can walk the chain without synchronizing
// with the writer.
func TestStorage_ConcurrentReadsDuringEdits(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.BatchSize = 1
	s, _ := newTestStorage(t, cfg)

	s.TrackCreation("m1", "Apollo", "v0", nil)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				p, err := s.GetProvenance(ctx, "m1", true)
				if err != nil || p == nil {
					continue
				}
				for _, e := range p.Chain {
					if !e.Action.Valid() {
						t.Errorf("chain entry corrupted mid-read: %q", e.Action)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		s.TrackEdit("m1", "Apollo", ActionRevised, fmt.Sprintf("edit %d", i))
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	close(done)
	wg.Wait()
}

// TestStorage_CachedAggregateImmutable verifies that an aggregate handed to
// a caller is not rewritten by later edits: the worker publishes a fresh
// copy instead of mutating the shared one.
func TestStorage_CachedAggregateImmutable(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorage(t, DefaultConfig())

	s.TrackCreation("m1", "Apollo", "v0", nil)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	before, err := s.GetProvenance(ctx, "m1", true)
	if err != nil || before == nil {
		t.Fatalf("GetProvenance failed: %v", err)
	}
	version := before.Version
	chainLen := len(before.Chain)

	s.TrackEdit("m1", "Apollo", ActionRevised, "update")
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if before.Version != version || len(before.Chain) != chainLen {
		t.Errorf("published aggregate mutated: version %d -> %d, chain %d -> %d",
			version, before.Version, chainLen, len(before.Chain))
	}
	after, err := s.GetProvenance(ctx, "m1", true)
	if err != nil || after == nil {
		t.Fatalf("GetProvenance after edit failed: %v", err)
	}
	if after.Version != version+1 {
		t.Errorf("Version after edit: got %d, want %d", after.Version, version+1)
	}
}
