//go:build !tracing

package trace

// NewFileExporter returns a no-op exporter when tracing is disabled at
// build time. The signature matches the tracing-enabled version for API
// compatibility.
func NewFileExporter(filePath string, opts ...FileExporterOption) (Exporter, error) {
	return &Noop{}, nil
}
