package provenance

import (
	"context"
	"sync"
)

// LazyLoader wraps a memory id and defers the provenance read until the
// first Load call. The result (including absence) is cached for the
// lifetime of the loader.
type LazyLoader struct {
	storage  *Storage
	memoryID string

	mu     sync.Mutex
	loaded bool
	prov   *Provenance
	err    error
}

// NewLazyLoader creates a loader for the given memory id.
func NewLazyLoader(storage *Storage, memoryID string) *LazyLoader {
	return &LazyLoader{storage: storage, memoryID: memoryID}
}

// Load performs the storage read on first invocation and returns the
// cached result afterwards.
func (l *LazyLoader) Load(ctx context.Context) (*Provenance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		l.prov, l.err = l.storage.GetProvenance(ctx, l.memoryID, true)
		l.loaded = true
	}
	return l.prov, l.err
}

// Loaded reports whether the read has happened yet.
func (l *LazyLoader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}
