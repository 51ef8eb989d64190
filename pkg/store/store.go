// Package store provides memory record storage backends for memtrail.
package store

import (
	"context"
	"time"
)

// Record represents a single stored memory value.
type Record struct {
	ID        string         `json:"id"`
	Key       string         `json:"key"`
	Value     string         `json:"value"`
	Namespace string         `json:"namespace"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// MemoryStore defines the interface for memory record persistence.
// The provenance subsystem consumes exactly these three operations and
// persists its own state through them under reserved namespaces.
type MemoryStore interface {
	// Store saves a value under (namespace, key), overwriting any existing
	// record for that pair. Returns the stored record.
	Store(ctx context.Context, key, value, namespace string, metadata map[string]any) (*Record, error)

	// Retrieve returns the record for (namespace, key), or (nil, nil) if
	// no such record exists. Absence is not an error.
	Retrieve(ctx context.Context, key, namespace string) (*Record, error)

	// Search returns up to limit records in the namespace whose value
	// contains the query (case-insensitive), newest first.
	Search(ctx context.Context, query, namespace string, limit int) ([]Record, error)
}
