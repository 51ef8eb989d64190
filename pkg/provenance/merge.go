package provenance

import (
	"fmt"
	"strings"
)

// MergeStatus classifies the outcome of a merge attempt.
type MergeStatus string

const (
	MergeSuccess  MergeStatus = "success"
	MergeConflict MergeStatus = "conflict"
)

// ConflictDetail carries the full conflict payload of an unresolved merge.
type ConflictDetail struct {
	TargetBranch  string `json:"target_branch"`
	SourceBranch  string `json:"source_branch"`
	TargetContent string `json:"target_content"`
	SourceContent string `json:"source_content"`
	// Ancestor is the common-ancestor content, empty when unknown.
	Ancestor string `json:"ancestor,omitempty"`
}

// MergeResult is the typed result of MergeBranches. A conflict is not an
// error; it is reported here with the materialized conflict branch name
// (when auto-conflict branches are enabled) and the structured payload.
type MergeResult struct {
	Status         MergeStatus     `json:"status"`
	Content        string          `json:"content,omitempty"`
	ConflictBranch string          `json:"conflict_branch,omitempty"`
	Conflict       *ConflictDetail `json:"conflict,omitempty"`
}

// Merger attempts to reconcile two divergent branch contents given their
// common ancestor. Implementations return the merged content and true on a
// clean resolve, or false to signal a conflict.
type Merger interface {
	Merge(ancestor, target, source string) (merged string, ok bool)
}

// ConservativeMerger signals a conflict for any non-identical contents.
// Byte-identical contents never reach the merger, so this makes every real
// divergence a conflict for manual resolution. Plug in a diff3-style
// Merger for richer semantics.
type ConservativeMerger struct{}

// Merge always signals a conflict.
func (ConservativeMerger) Merge(ancestor, target, source string) (string, bool) {
	return "", false
}

// conflictContent formats both sides of an unresolved merge. With markers
// enabled the output uses git-style delimiters, including the common
// ancestor block when one is known; otherwise both versions are
// concatenated with branch labels.
func conflictContent(markers bool, detail *ConflictDetail) string {
	if !markers {
		return fmt.Sprintf("=== %s ===\n%s\n\n=== %s ===\n%s\n",
			detail.TargetBranch, detail.TargetContent,
			detail.SourceBranch, detail.SourceContent)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<<<<<<< %s\n", detail.TargetBranch)
	b.WriteString(detail.TargetContent)
	b.WriteString("\n")
	if detail.Ancestor != "" {
		b.WriteString("||||||| common ancestor\n")
		b.WriteString(detail.Ancestor)
		b.WriteString("\n")
	}
	b.WriteString("=======\n")
	b.WriteString(detail.SourceContent)
	b.WriteString("\n")
	fmt.Fprintf(&b, ">>>>>>> %s\n", detail.SourceBranch)
	return b.String()
}
