package provenance

import (
	"context"
	"testing"

	"github.com/memtrail/memtrail/pkg/store"
)

func newTestOptimized(t *testing.T, cfg Config) *OptimizedStorage {
	t.Helper()
	s := NewStorage(store.NewInMemoryStore(), cfg)
	o := NewOptimizedStorage(s, nil)
	o.Start(context.Background())
	t.Cleanup(o.Stop)
	return o
}

func TestOptimizedStorage_ShouldTrack(t *testing.T) {
	o := newTestOptimized(t, DefaultConfig())

	tests := []struct {
		namespace  string
		importance float64
		want       bool
	}{
		{"session", 5.0, false},   // skip prefix wins over importance
		{"session-42", 0.9, false},
		{"temp", 1.0, false},
		{"scratchpad", 1.0, false},
		{"longterm", 0.0, true},   // tracked namespace wins over importance
		{"decisions", 0.1, true},
		{"identity", 0.0, true},
		{"notes", 0.5, true},      // threshold 0.3
		{"notes", 0.3, true},
		{"notes", 0.1, false},
	}
	for _, tt := range tests {
		if got := o.ShouldTrack(tt.namespace, tt.importance); got != tt.want {
			t.Errorf("ShouldTrack(%q, %v): got %v, want %v", tt.namespace, tt.importance, got, tt.want)
		}
	}
}

// TestOptimizedStorage_EditFlow verifies edits route through the batch
// buffer and become visible after Flush.
func TestOptimizedStorage_EditFlow(t *testing.T) {
	ctx := context.Background()
	o := newTestOptimized(t, DefaultConfig())

	o.TrackCreation("m1", "Apollo", "content", nil)
	o.TrackEdit("m1", "Rhetor", ActionRevised, "first edit")
	o.TrackEdit("m1", "Rhetor", ActionWondered, "what if")
	if err := o.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	p, err := o.GetProvenance(ctx, "m1", true)
	if err != nil {
		t.Fatalf("GetProvenance failed: %v", err)
	}
	if len(p.Chain) != 3 {
		t.Fatalf("Chain length: got %d, want 3", len(p.Chain))
	}
	if p.Chain[2].Action != ActionWondered {
		t.Errorf("chain[2].Action: got %s, want wondered", p.Chain[2].Action)
	}

	// The wrapper timed every call.
	for _, op := range []string{"track_creation", "track_edit", "get_provenance"} {
		if _, ok := o.Monitor().Stats(op); !ok {
			t.Errorf("Monitor has no stats for %s", op)
		}
	}
}

// TestOptimizedStorage_StopDelivers verifies Stop flushes batched edits
// before the write queue drains.
func TestOptimizedStorage_StopDelivers(t *testing.T) {
	ctx := context.Background()
	backing := store.NewInMemoryStore()
	s := NewStorage(backing, DefaultConfig())
	o := NewOptimizedStorage(s, nil)
	o.Start(ctx)

	o.TrackCreation("m1", "Apollo", "content", nil)
	o.TrackEdit("m1", "Rhetor", ActionRevised, "buffered edit")
	o.Stop()

	reader := NewStorage(backing, DefaultConfig())
	p, err := reader.GetProvenance(ctx, "m1", false)
	if err != nil {
		t.Fatalf("GetProvenance failed: %v", err)
	}
	if p == nil || len(p.Chain) != 2 {
		t.Fatalf("Batched edit lost on Stop: %+v", p)
	}
}

func TestLazyLoader(t *testing.T) {
	ctx := context.Background()
	o := newTestOptimized(t, DefaultConfig())

	o.TrackCreation("m1", "Apollo", "content", nil)
	if err := o.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	l := o.Lazy("m1")
	if l.Loaded() {
		t.Error("Loader claims loaded before first Load")
	}

	p, err := l.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p == nil || p.MemoryID != "m1" {
		t.Fatalf("Load result: %+v", p)
	}
	if !l.Loaded() {
		t.Error("Loader not marked loaded after Load")
	}

	// Cached: same aggregate back without a second read.
	p2, err := l.Load(ctx)
	if err != nil {
		t.Fatalf("Second Load failed: %v", err)
	}
	if p2 != p {
		t.Error("Second Load did not return the cached aggregate")
	}
}

func TestLazyLoader_CachesAbsence(t *testing.T) {
	ctx := context.Background()
	o := newTestOptimized(t, DefaultConfig())

	l := o.Lazy("ghost")
	p, err := l.Load(ctx)
	if err != nil || p != nil {
		t.Fatalf("Load of untracked memory: p=%v err=%v", p, err)
	}
	if !l.Loaded() {
		t.Error("Absence not cached")
	}
}
