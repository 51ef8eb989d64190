// Package provenance implements a git-like version-control layer over
// opaque memory records: an append-only chain of attributed entries per
// memory, named branches with content snapshots, merge with conflict
// detection and chain compaction.
package provenance

import (
	"time"
)

// Action classifies how an actor touched a memory.
type Action string

const (
	ActionCreated      Action = "created"
	ActionRevised      Action = "revised"
	ActionMerged       Action = "merged"
	ActionForked       Action = "forked"
	ActionConnected    Action = "connected"
	ActionSynthesized  Action = "synthesized"
	ActionWondered     Action = "wondered"
	ActionCrystallized Action = "crystallized"

	// ActionSquashed is system-only, appended by chain compaction.
	ActionSquashed Action = "squashed"
)

// Valid reports whether the action is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionRevised, ActionMerged, ActionForked,
		ActionConnected, ActionSynthesized, ActionWondered,
		ActionCrystallized, ActionSquashed:
		return true
	}
	return false
}

// Milestone reports whether the action survives a milestone-keeping squash.
func (a Action) Milestone() bool {
	switch a {
	case ActionMerged, ActionForked, ActionCrystallized:
		return true
	}
	return false
}

// Entry is a single link in a memory's provenance chain.
// Entries are immutable once appended.
type Entry struct {
	Actor     string    `json:"actor"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
	// With lists related memory identifiers, used for merges and connections.
	With    []string `json:"with,omitempty"`
	Context string   `json:"context,omitempty"`
	// Confidence is the actor's confidence in the change, 0..1.
	Confidence *float64 `json:"confidence,omitempty"`
	// Extra carries action-specific data without loosening the fixed fields.
	Extra map[string]any `json:"extra,omitempty"`
}

// EntryOption configures optional fields on an Entry.
type EntryOption func(*Entry)

// WithRelated sets the related memory identifiers on the entry.
func WithRelated(ids ...string) EntryOption {
	return func(e *Entry) {
		e.With = append(e.With, ids...)
	}
}

// WithContext sets the free-text context on the entry.
func WithContext(context string) EntryOption {
	return func(e *Entry) {
		e.Context = context
	}
}

// WithConfidence sets the confidence score on the entry.
func WithConfidence(confidence float64) EntryOption {
	return func(e *Entry) {
		e.Confidence = &confidence
	}
}

// WithExtra attaches one action-specific key/value to the entry.
func WithExtra(key string, value any) EntryOption {
	return func(e *Entry) {
		if e.Extra == nil {
			e.Extra = make(map[string]any)
		}
		e.Extra[key] = value
	}
}

// Branch is a named, independently evolvable snapshot of a memory's content.
type Branch struct {
	Name         string    `json:"name"`
	BaseMemoryID string    `json:"base_memory_id"`
	Content      string    `json:"content"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	CreatedBy    string    `json:"created_by"`
	Active       bool      `json:"active"`
	ParentBranch string    `json:"parent_branch,omitempty"`
}

// MergeEvent records one branch merge attempt in the aggregate's history.
type MergeEvent struct {
	SourceBranch   string    `json:"source_branch"`
	TargetBranch   string    `json:"target_branch"`
	Actor          string    `json:"actor"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status"` // "success" or "conflict"
	ConflictBranch string    `json:"conflict_branch,omitempty"`
}

// MainBranch is the implicit default branch name.
const MainBranch = "main"

// Provenance is the aggregate: one per tracked memory, holding the full
// chain, branches and merge history.
type Provenance struct {
	MemoryID string  `json:"memory_id"`
	Chain    []Entry `json:"chain"`
	// BaseContent is the content snapshot taken at creation time, used to
	// seed the implicit main branch when branching first touches the memory.
	BaseContent   string             `json:"base_content,omitempty"`
	Branches      map[string]*Branch `json:"branches,omitempty"`
	CurrentBranch string             `json:"current_branch"`
	Forks         []string           `json:"forks,omitempty"`
	MergeHistory  []MergeEvent       `json:"merge_history,omitempty"`
	Version       int                `json:"version"`
	Squashed      bool               `json:"squashed,omitempty"`
	SquashCount   int                `json:"squash_count,omitempty"`
}

// NewProvenance creates an empty aggregate for a memory.
func NewProvenance(memoryID string) *Provenance {
	return &Provenance{
		MemoryID:      memoryID,
		CurrentBranch: MainBranch,
		Branches:      make(map[string]*Branch),
	}
}

// Append adds one entry to the chain and increments the version.
// This is the only way the chain may grow.
func (p *Provenance) Append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	p.Chain = append(p.Chain, e)
	p.Version++
}

// Latest returns the newest chain entry, or nil for an empty chain.
func (p *Provenance) Latest() *Entry {
	if len(p.Chain) == 0 {
		return nil
	}
	return &p.Chain[len(p.Chain)-1]
}

// BranchNames returns the branch names in sorted-insertion-independent order.
func (p *Provenance) BranchNames() []string {
	names := make([]string, 0, len(p.Branches))
	for name := range p.Branches {
		names = append(names, name)
	}
	return names
}
