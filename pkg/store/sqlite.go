package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements MemoryStore using SQLite as the backend.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
}

// NewSQLiteStore creates a new SQLite-backed memory store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
// Creates tables and indexes if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; the pool must not open
	// a second one.
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, ownsDB: true}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// NewSQLiteStoreDB creates a store over a caller-supplied database
// connection, allowing an alternative SQLite driver. The caller keeps
// ownership of the connection; Close becomes a no-op.
func NewSQLiteStoreDB(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// DB returns the underlying database connection for advanced operations.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		namespace TEXT NOT NULL,
		value TEXT NOT NULL,
		metadata_json TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (namespace, key)
	);

	CREATE INDEX IF NOT EXISTS idx_records_namespace ON records(namespace);
	CREATE INDEX IF NOT EXISTS idx_records_updated ON records(namespace, updated_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Store saves a value under (namespace, key), upserting on conflict.
func (s *SQLiteStore) Store(ctx context.Context, key, value, namespace string, metadata map[string]any) (*Record, error) {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now()
	record := &Record{
		ID:        uuid.New().String(),
		Key:       key,
		Value:     value,
		Namespace: namespace,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO records (id, key, namespace, value, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = excluded.value,
			metadata_json = excluded.metadata_json,
			updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query,
		record.ID, key, namespace, value, metadataJSON, now, now); err != nil {
		return nil, fmt.Errorf("failed to store record: %w", err)
	}

	// An upsert keeps the original id and created_at; read them back so
	// the returned record reflects what is actually persisted.
	err = s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM records WHERE namespace = ? AND key = ?",
		namespace, key).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read back record: %w", err)
	}

	return record, nil
}

// Retrieve returns the record for (namespace, key), or (nil, nil) if absent.
func (s *SQLiteStore) Retrieve(ctx context.Context, key, namespace string) (*Record, error) {
	query := `
		SELECT id, key, namespace, value, metadata_json, created_at, updated_at
		FROM records
		WHERE namespace = ? AND key = ?
	`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, namespace, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve record: %w", err)
	}

	return record, nil
}

// Search returns records in the namespace whose value contains the query,
// newest first. limit <= 0 defaults to 10; the maximum is 100.
func (s *SQLiteStore) Search(ctx context.Context, query, namespace string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	sqlQuery := `
		SELECT id, key, namespace, value, metadata_json, created_at, updated_at
		FROM records
		WHERE namespace = ? AND value COLLATE NOCASE LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC
		LIMIT ?
	`

	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, sqlQuery, namespace, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// Close releases the database connection if this store owns it.
func (s *SQLiteStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var record Record
	var metadataJSON []byte

	err := row.Scan(
		&record.ID,
		&record.Key,
		&record.Namespace,
		&record.Value,
		&metadataJSON,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &record, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE wildcards so user queries match literally; the
// pattern is bound with ESCAPE '\'.
func escapeLike(q string) string {
	return likeEscaper.Replace(q)
}
