// Package trace exports sanitized operation traces for the provenance
// subsystem. Traces are the observable error sink for detached background
// writes: failures stay off the critical path but remain inspectable.
package trace

import (
	"context"
	"time"
)

// Exporter defines the interface for exporting operation traces.
// Implementations must be safe for concurrent use.
type Exporter interface {
	// Export writes a trace record to the configured destination.
	Export(ctx context.Context, record *Record) error

	// Close flushes any buffered records and releases resources.
	// Should be called during graceful shutdown.
	Close() error
}

// Record represents one sanitized operation trace. It carries identifiers
// and timings only, never memory content.
type Record struct {
	// Timestamp is the operation start time
	Timestamp time.Time `json:"timestamp"`

	// Operation is the operation name: "track_creation", "track_edit",
	// "merge_branches", "squash_chain", ...
	Operation string `json:"operation"`

	// MemoryID identifies the memory the operation touched, if any
	MemoryID string `json:"memoryId,omitempty"`

	// DurationMs is the operation duration in milliseconds
	DurationMs int64 `json:"durationMs"`

	// Status is "success" or "error"
	Status string `json:"status"`

	// ErrorType classifies the error (if Status == "error")
	// Values: network, timeout, database, validation, unknown
	ErrorType string `json:"errorType,omitempty"`

	// Detail carries operation-specific values (no content)
	Detail map[string]any `json:"detail,omitempty"`
}

// FileExporterOption configures a FileExporter.
// Available in both tracing and non-tracing builds for API compatibility.
type FileExporterOption func(interface{})
