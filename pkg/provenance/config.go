package provenance

import "time"

// Config holds all tuning knobs for the provenance subsystem.
// Use DefaultConfig as the starting point; the zero value disables
// batching-friendly defaults and is rarely what you want.
type Config struct {
	// BatchInterval is how often the batch processor flushes pending edits.
	BatchInterval time.Duration

	// BatchSize is the buffer size that forces an immediate flush.
	BatchSize int

	// CacheTTL is how long a cached aggregate stays fresh.
	CacheTTL time.Duration

	// MaxCacheSize bounds the aggregate cache; when exceeded the oldest
	// ~10% of entries are evicted.
	MaxCacheSize int

	// DefaultTracking enables tracking for namespaces outside
	// TrackedNamespaces when no explicit flag is given.
	DefaultTracking bool

	// TrackedNamespaces are always tracked regardless of importance.
	TrackedNamespaces []string

	// ImportanceThreshold is the minimum importance score for tracking
	// outside the always-tracked namespaces.
	ImportanceThreshold float64

	// MaxChainLength is the chain length above which squashing applies.
	MaxChainLength int

	// KeepMilestones preserves merged/forked/crystallized entries across
	// squashes.
	KeepMilestones bool

	// AutoSquash enables opportunistic squashing when the chain grows past
	// MaxChainLength.
	AutoSquash bool

	// AutoConflictBranch materializes a conflict branch when a merge cannot
	// resolve.
	AutoConflictBranch bool

	// ConflictBranchPattern names conflict branches; {base} and {timestamp}
	// are substituted.
	ConflictBranchPattern string

	// ConflictMarkers formats conflict content with git-style delimiters;
	// when false, both versions are concatenated with branch labels.
	ConflictMarkers bool

	// ProvenanceNamespace is the reserved namespace for aggregate records.
	ProvenanceNamespace string

	// BranchNamespace is the reserved namespace for branch snapshots.
	BranchNamespace string

	// SkipNamespacePrefixes lists namespace prefixes that are never tracked
	// (temporary/session-like namespaces).
	SkipNamespacePrefixes []string

	// SlowOpThreshold is the duration above which the performance monitor
	// logs an operation as slow.
	SlowOpThreshold time.Duration
}

// DefaultConfig returns the config with production defaults.
func DefaultConfig() Config {
	return Config{
		BatchInterval:         time.Second,
		BatchSize:             50,
		CacheTTL:              5 * time.Minute,
		MaxCacheSize:          1000,
		DefaultTracking:       false,
		TrackedNamespaces:     []string{"longterm", "decisions", "identity"},
		ImportanceThreshold:   0.3,
		MaxChainLength:        50,
		KeepMilestones:        true,
		AutoSquash:            true,
		AutoConflictBranch:    true,
		ConflictBranchPattern: "{base}.conflict-{timestamp}",
		ConflictMarkers:       true,
		ProvenanceNamespace:   "_provenance",
		BranchNamespace:       "_branches",
		SkipNamespacePrefixes: []string{"session", "temp", "tmp", "scratch"},
		SlowOpThreshold:       100 * time.Millisecond,
	}
}

// withDefaults fills zero-valued fields that have no sensible zero meaning.
// Boolean knobs are taken as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchInterval == 0 {
		c.BatchInterval = d.BatchInterval
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.MaxCacheSize == 0 {
		c.MaxCacheSize = d.MaxCacheSize
	}
	if c.ImportanceThreshold == 0 {
		c.ImportanceThreshold = d.ImportanceThreshold
	}
	if c.MaxChainLength == 0 {
		c.MaxChainLength = d.MaxChainLength
	}
	if c.ConflictBranchPattern == "" {
		c.ConflictBranchPattern = d.ConflictBranchPattern
	}
	if c.ProvenanceNamespace == "" {
		c.ProvenanceNamespace = d.ProvenanceNamespace
	}
	if c.BranchNamespace == "" {
		c.BranchNamespace = d.BranchNamespace
	}
	if c.SkipNamespacePrefixes == nil {
		c.SkipNamespacePrefixes = d.SkipNamespacePrefixes
	}
	if c.SlowOpThreshold == 0 {
		c.SlowOpThreshold = d.SlowOpThreshold
	}
	return c
}
