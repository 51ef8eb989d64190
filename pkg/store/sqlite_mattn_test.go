package store

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// TestSQLiteStore_MattnDriver runs the store against the cgo SQLite driver
// to catch SQL that only one driver accepts.
func TestSQLiteStore_MattnDriver(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStoreDB(db)
	if err != nil {
		t.Fatalf("Failed to create store over cgo driver: %v", err)
	}

	ctx := context.Background()
	if _, err := s.Store(ctx, "k", "driver compat", "ns", map[string]any{"n": 1}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := s.Store(ctx, "k", "driver compat v2", "ns", nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := s.Retrieve(ctx, "k", "ns")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got == nil || got.Value != "driver compat v2" {
		t.Errorf("Retrieve: got %+v", got)
	}

	results, err := s.Search(ctx, "compat", "ns", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Search results: got %d, want 1", len(results))
	}
}
