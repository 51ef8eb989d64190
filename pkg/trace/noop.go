package trace

import "context"

// Noop is a zero-overhead exporter that does nothing. It is the default
// sink when no exporter is configured.
type Noop struct{}

// Export does nothing.
func (n *Noop) Export(ctx context.Context, record *Record) error {
	return nil
}

// Close does nothing.
func (n *Noop) Close() error {
	return nil
}
