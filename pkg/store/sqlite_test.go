package store

import (
	"context"
	"testing"
)

// TestSQLiteStore_StoreRetrieve tests basic store and retrieve.
func TestSQLiteStore_StoreRetrieve(t *testing.T) {
	ctx := context.Background()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	record, err := s.Store(ctx, "greeting", "hello world", "notes", map[string]any{"lang": "en"})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if record.ID == "" {
		t.Error("Record ID not generated")
	}

	got, err := s.Retrieve(ctx, "greeting", "notes")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got == nil {
		t.Fatal("Retrieve returned nil for existing record")
	}
	if got.Value != "hello world" {
		t.Errorf("Value mismatch: got %q, want %q", got.Value, "hello world")
	}
	if got.Metadata["lang"] != "en" {
		t.Errorf("Metadata mismatch: got %v", got.Metadata)
	}
}

// TestSQLiteStore_RetrieveAbsent verifies absence is (nil, nil), not an error.
func TestSQLiteStore_RetrieveAbsent(t *testing.T) {
	ctx := context.Background()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	got, err := s.Retrieve(ctx, "nope", "notes")
	if err != nil {
		t.Fatalf("Retrieve of absent key errored: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil record, got %+v", got)
	}
}

// TestSQLiteStore_Upsert verifies a second Store to the same key keeps the
// original id and created_at.
func TestSQLiteStore_Upsert(t *testing.T) {
	ctx := context.Background()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	first, err := s.Store(ctx, "k", "v1", "ns", nil)
	if err != nil {
		t.Fatalf("First store failed: %v", err)
	}

	second, err := s.Store(ctx, "k", "v2", "ns", nil)
	if err != nil {
		t.Fatalf("Second store failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("Upsert changed record id: %s -> %s", first.ID, second.ID)
	}

	got, err := s.Retrieve(ctx, "k", "ns")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got.Value != "v2" {
		t.Errorf("Value not updated: got %q", got.Value)
	}
}

// TestSQLiteStore_NamespaceIsolation verifies the same key in different
// namespaces holds different records.
func TestSQLiteStore_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := s.Store(ctx, "k", "from-a", "ns-a", nil); err != nil {
		t.Fatalf("Store ns-a failed: %v", err)
	}
	if _, err := s.Store(ctx, "k", "from-b", "ns-b", nil); err != nil {
		t.Fatalf("Store ns-b failed: %v", err)
	}

	a, err := s.Retrieve(ctx, "k", "ns-a")
	if err != nil {
		t.Fatalf("Retrieve ns-a failed: %v", err)
	}
	if a.Value != "from-a" {
		t.Errorf("ns-a value: got %q, want from-a", a.Value)
	}

	b, err := s.Retrieve(ctx, "k", "ns-b")
	if err != nil {
		t.Fatalf("Retrieve ns-b failed: %v", err)
	}
	if b.Value != "from-b" {
		t.Errorf("ns-b value: got %q, want from-b", b.Value)
	}
}

// TestSQLiteStore_Search tests substring search within a namespace.
func TestSQLiteStore_Search(t *testing.T) {
	ctx := context.Background()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	seeds := map[string]string{
		"m1": "the quick brown fox",
		"m2": "a lazy dog sleeps",
		"m3": "quick thinking saves time",
	}
	for k, v := range seeds {
		if _, err := s.Store(ctx, k, v, "facts", nil); err != nil {
			t.Fatalf("Store %s failed: %v", k, err)
		}
	}
	// Same content in another namespace must not leak into results.
	if _, err := s.Store(ctx, "m4", "quick other namespace", "other", nil); err != nil {
		t.Fatalf("Store m4 failed: %v", err)
	}

	results, err := s.Search(ctx, "Quick", "facts", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search results: got %d, want 2", len(results))
	}
	for _, r := range results {
		if r.Namespace != "facts" {
			t.Errorf("Search leaked namespace %q", r.Namespace)
		}
	}

	limited, err := s.Search(ctx, "quick", "facts", 1)
	if err != nil {
		t.Fatalf("Limited search failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Limited search: got %d results, want 1", len(limited))
	}
}

// TestSQLiteStore_SearchLiteralWildcards verifies '%' and '_' in queries
// match literally instead of acting as LIKE wildcards.
func TestSQLiteStore_SearchLiteralWildcards(t *testing.T) {
	ctx := context.Background()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	seeds := map[string]string{
		"m1": "progress at 100% complete",
		"m2": "progress at 100x complete",
		"m3": "env var MAX_CHAIN set",
		"m4": "env var MAXACHAIN set",
	}
	for k, v := range seeds {
		if _, err := s.Store(ctx, k, v, "facts", nil); err != nil {
			t.Fatalf("Store %s failed: %v", k, err)
		}
	}

	results, err := s.Search(ctx, "100%", "facts", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Value != seeds["m1"] {
		t.Fatalf("Percent query: got %d results, want only the literal match", len(results))
	}

	results, err = s.Search(ctx, "MAX_CHAIN", "facts", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Value != seeds["m3"] {
		t.Fatalf("Underscore query: got %d results, want only the literal match", len(results))
	}
}
