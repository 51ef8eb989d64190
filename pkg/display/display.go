// Package display renders provenance snapshots for humans and graph
// tools. Every function is a pure formatter over the snapshot passed in:
// no state is mutated and nothing is read from storage.
package display

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/memtrail/memtrail/pkg/provenance"
)

// Tree renders the chain as a branch-aware tree view. The newest entry is
// marked [CURRENT].
func Tree(p *provenance.Provenance) string {
	if p == nil || len(p.Chain) == 0 {
		return "(no provenance)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "memory %s (branch: %s, version %d)\n", p.MemoryID, p.CurrentBranch, p.Version)

	for i, e := range p.Chain {
		connector := "├─"
		if i == len(p.Chain)-1 {
			connector = "└─"
		}
		fmt.Fprintf(&b, "%s %s by %s", connector, e.Action, e.Actor)
		if len(e.With) > 0 {
			fmt.Fprintf(&b, " (with %s)", strings.Join(e.With, ", "))
		}
		if e.Note != "" {
			fmt.Fprintf(&b, ": %s", e.Note)
		}
		if i == len(p.Chain)-1 {
			b.WriteString(" [CURRENT]")
		}
		b.WriteString("\n")
	}

	if len(p.Branches) > 0 {
		names := sortedBranchNames(p)
		var labels []string
		for _, name := range names {
			label := name
			if name == p.CurrentBranch {
				label = "*" + name
			}
			labels = append(labels, label)
		}
		fmt.Fprintf(&b, "branches: %s\n", strings.Join(labels, ", "))
	}

	return b.String()
}

// Summary renders a one-line compact summary: distinct actors, edit count
// and relative time of the last edit.
func Summary(p *provenance.Provenance) string {
	if p == nil || len(p.Chain) == 0 {
		return "(no provenance)"
	}

	actors := make(map[string]bool)
	for _, e := range p.Chain {
		actors[e.Actor] = true
	}

	last := p.Chain[len(p.Chain)-1]
	return fmt.Sprintf("%s: %d actors, %d entries, last %s %s",
		p.MemoryID, len(actors), len(p.Chain), last.Action, relTime(last.Timestamp))
}

// Detailed renders every field of the aggregate: the full chain, branch
// list and squash metadata.
func Detailed(p *provenance.Provenance) string {
	if p == nil {
		return "(no provenance)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Memory:  %s\n", p.MemoryID)
	fmt.Fprintf(&b, "Branch:  %s\n", p.CurrentBranch)
	fmt.Fprintf(&b, "Version: %d\n", p.Version)
	if p.Squashed {
		fmt.Fprintf(&b, "Squashed: yes (%d squashes)\n", p.SquashCount)
	}

	fmt.Fprintf(&b, "Chain (%d entries):\n", len(p.Chain))
	for i, e := range p.Chain {
		fmt.Fprintf(&b, "  [%d] %s by %s at %s", i, e.Action, e.Actor, e.Timestamp.Format(time.RFC3339))
		if e.Note != "" {
			fmt.Fprintf(&b, "\n      note: %s", e.Note)
		}
		if len(e.With) > 0 {
			fmt.Fprintf(&b, "\n      with: %s", strings.Join(e.With, ", "))
		}
		if e.Context != "" {
			fmt.Fprintf(&b, "\n      context: %s", e.Context)
		}
		if e.Confidence != nil {
			fmt.Fprintf(&b, "\n      confidence: %.2f", *e.Confidence)
		}
		b.WriteString("\n")
	}

	if len(p.Branches) > 0 {
		fmt.Fprintf(&b, "Branches (%d):\n", len(p.Branches))
		for _, name := range sortedBranchNames(p) {
			br := p.Branches[name]
			state := "active"
			if !br.Active {
				state = "inactive"
			}
			fmt.Fprintf(&b, "  %s (v%d, %s, by %s", name, br.Version, state, br.CreatedBy)
			if br.ParentBranch != "" {
				fmt.Fprintf(&b, ", from %s", br.ParentBranch)
			}
			b.WriteString(")\n")
		}
	}

	if len(p.MergeHistory) > 0 {
		fmt.Fprintf(&b, "Merges (%d):\n", len(p.MergeHistory))
		for _, m := range p.MergeHistory {
			fmt.Fprintf(&b, "  %s -> %s by %s: %s", m.SourceBranch, m.TargetBranch, m.Actor, m.Status)
			if m.ConflictBranch != "" {
				fmt.Fprintf(&b, " (conflict branch %s)", m.ConflictBranch)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// SnapshotDiff reports the entries appended between two snapshots of the
// same memory.
type SnapshotDiff struct {
	MemoryID   string
	Count      int
	NewEntries []provenance.Entry
}

// String renders the diff for humans.
func (d SnapshotDiff) String() string {
	if d.Count == 0 {
		return fmt.Sprintf("%s: no new entries", d.MemoryID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d new entries\n", d.MemoryID, d.Count)
	for _, e := range d.NewEntries {
		fmt.Fprintf(&b, "  + %s by %s", e.Action, e.Actor)
		if e.Note != "" {
			fmt.Fprintf(&b, ": %s", e.Note)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Diff compares two snapshots of the same memory, reporting the entries
// present in after but not in before. A before of nil means everything in
// after is new.
func Diff(before, after *provenance.Provenance) SnapshotDiff {
	if after == nil {
		return SnapshotDiff{}
	}
	diff := SnapshotDiff{MemoryID: after.MemoryID}

	from := 0
	if before != nil {
		from = len(before.Chain)
	}
	if from > len(after.Chain) {
		// The chain shrank (squash between snapshots); report the whole
		// post-squash chain as new.
		from = 0
	}
	diff.NewEntries = append(diff.NewEntries, after.Chain[from:]...)
	diff.Count = len(diff.NewEntries)
	return diff
}

func sortedBranchNames(p *provenance.Provenance) []string {
	names := p.BranchNames()
	sort.Strings(names)
	return names
}

// relTime renders a duration since t in coarse human units.
func relTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
