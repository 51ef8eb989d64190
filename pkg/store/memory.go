package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-memory implementation of MemoryStore.
// It uses nested maps keyed by namespace then key and provides thread-safe
// access via RWMutex. Search is a naive case-insensitive substring match,
// good enough for unit tests and demos.
// Note: This implementation does not persist records across restarts.
type InMemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Record
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		namespaces: make(map[string]map[string]Record),
	}
}

// Store saves a value under (namespace, key), overwriting any existing record.
func (m *InMemoryStore) Store(ctx context.Context, key, value, namespace string, metadata map[string]any) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]Record)
		m.namespaces[namespace] = ns
	}

	now := time.Now()
	record := Record{
		ID:        uuid.New().String(),
		Key:       key,
		Value:     value,
		Namespace: namespace,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if existing, ok := ns[key]; ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	}

	ns[key] = record
	return &record, nil
}

// Retrieve returns the record for (namespace, key), or (nil, nil) if absent.
func (m *InMemoryStore) Retrieve(ctx context.Context, key, namespace string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		return nil, nil
	}

	record, ok := ns[key]
	if !ok {
		return nil, nil
	}

	return &record, nil
}

// Search performs a case-insensitive substring search over record values in
// the namespace. Results are sorted newest first and capped at limit.
func (m *InMemoryStore) Search(ctx context.Context, query, namespace string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	q := strings.ToLower(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Record
	for _, record := range m.namespaces[namespace] {
		if strings.Contains(strings.ToLower(record.Value), q) {
			results = append(results, record)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].UpdatedAt.After(results[j].UpdatedAt)
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}
