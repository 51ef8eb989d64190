package provenance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operations implements the higher-level provenance workflows: branch
// merging with conflict detection, chain squashing, and opportunistic
// auto-squash. All mutations run on the storage's background worker so
// they serialize with tracking writes.
type Operations struct {
	storage *Storage
	merger  Merger
	log     *slog.Logger
	now     func() time.Time
}

// NewOperations creates the operations layer over a storage. A nil merger
// falls back to the conservative merger (any divergence is a conflict).
func NewOperations(storage *Storage, merger Merger, log *slog.Logger) *Operations {
	if merger == nil {
		merger = ConservativeMerger{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Operations{
		storage: storage,
		merger:  merger,
		log:     log,
		now:     time.Now,
	}
}

// MergeBranches merges sourceBranch into targetBranch (default main).
// Byte-identical contents merge immediately; otherwise the pluggable
// merger is consulted. An unresolvable merge is not an error: with
// auto-conflict branches enabled, a conflict branch holding both versions
// is materialized and named in the result.
func (o *Operations) MergeBranches(ctx context.Context, memoryID, sourceBranch, targetBranch, actor string) (*MergeResult, error) {
	if targetBranch == "" {
		targetBranch = MainBranch
	}
	if sourceBranch == "" {
		return nil, fmt.Errorf("source branch cannot be empty")
	}

	var result *MergeResult
	err := o.storage.do(ctx, writeOp{
		name:     "merge_branches",
		memoryID: memoryID,
		fn: func(ctx context.Context) error {
			p, err := o.storage.loadProvenance(ctx, memoryID)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("%w: memory %s has no provenance", ErrBranchNotFound, memoryID)
			}
			ensureMainBranch(p)

			src, ok := p.Branches[sourceBranch]
			if !ok {
				return fmt.Errorf("%w: %s", ErrBranchNotFound, sourceBranch)
			}
			tgt, ok := p.Branches[targetBranch]
			if !ok {
				return fmt.Errorf("%w: %s", ErrBranchNotFound, targetBranch)
			}

			if src.Content == tgt.Content {
				result = o.applyMerge(p, src, tgt, actor, tgt.Content)
				return o.persistMerge(ctx, p, tgt)
			}

			// Common-ancestor lookup is intentionally shallow: branch
			// snapshots do not retain fork-time content, so the merger
			// sees an empty ancestor unless a richer lookup is plugged in.
			merged, ok := o.merger.Merge("", tgt.Content, src.Content)
			if ok {
				tgt.Content = merged
				tgt.Version++
				result = o.applyMerge(p, src, tgt, actor, merged)
				return o.persistMerge(ctx, p, tgt)
			}

			detail := &ConflictDetail{
				TargetBranch:  targetBranch,
				SourceBranch:  sourceBranch,
				TargetContent: tgt.Content,
				SourceContent: src.Content,
			}
			result = &MergeResult{Status: MergeConflict, Conflict: detail}

			event := MergeEvent{
				SourceBranch: sourceBranch,
				TargetBranch: targetBranch,
				Actor:        actor,
				Timestamp:    o.now(),
				Status:       string(MergeConflict),
			}

			if o.storage.cfg.AutoConflictBranch {
				name := o.conflictBranchName(p, sourceBranch)
				conflictBranch := &Branch{
					Name:         name,
					BaseMemoryID: memoryID,
					Content:      conflictContent(o.storage.cfg.ConflictMarkers, detail),
					Version:      1,
					CreatedAt:    o.now(),
					CreatedBy:    actor,
					Active:       true,
					ParentBranch: targetBranch,
				}
				p.Branches[name] = conflictBranch
				p.Forks = append(p.Forks, name)
				result.ConflictBranch = name
				event.ConflictBranch = name
				if err := o.storage.persistBranch(ctx, conflictBranch); err != nil {
					return err
				}
			}

			p.MergeHistory = append(p.MergeHistory, event)
			return o.storage.persistProvenance(ctx, p)
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyMerge records a successful merge on the aggregate: a merged chain
// entry carrying the source branch, a merge-history event, and
// deactivation of the merged-in source branch.
func (o *Operations) applyMerge(p *Provenance, src, tgt *Branch, actor, content string) *MergeResult {
	src.Active = false
	p.Append(Entry{
		Actor:  actor,
		Action: ActionMerged,
		Note:   fmt.Sprintf("merged %s into %s", src.Name, tgt.Name),
		With:   []string{src.Name},
	})
	p.MergeHistory = append(p.MergeHistory, MergeEvent{
		SourceBranch: src.Name,
		TargetBranch: tgt.Name,
		Actor:        actor,
		Timestamp:    o.now(),
		Status:       string(MergeSuccess),
	})
	return &MergeResult{Status: MergeSuccess, Content: content}
}

func (o *Operations) persistMerge(ctx context.Context, p *Provenance, tgt *Branch) error {
	if err := o.storage.persistBranch(ctx, tgt); err != nil {
		return err
	}
	return o.storage.persistProvenance(ctx, p)
}

// conflictBranchName expands the configured pattern and disambiguates with
// a short random suffix when the name already exists within the same
// second-resolution window.
func (o *Operations) conflictBranchName(p *Provenance, baseBranch string) string {
	name := o.storage.cfg.ConflictBranchPattern
	name = strings.ReplaceAll(name, "{base}", baseBranch)
	name = strings.ReplaceAll(name, "{timestamp}", fmt.Sprintf("%d", o.now().Unix()))
	if _, exists := p.Branches[name]; exists {
		name = fmt.Sprintf("%s-%s", name, uuid.New().String()[:8])
	}
	return name
}

// SquashOptions configures a squash. KeepMilestones nil uses the
// configured default.
type SquashOptions struct {
	KeepMilestones *bool
}

// SquashResult reports the outcome of a squash.
type SquashResult struct {
	Status         string `json:"status"` // "skipped" or "squashed"
	OriginalLength int    `json:"original_length"`
	NewLength      int    `json:"new_length"`
	SquashCount    int    `json:"squash_count"`
}

// Squash compacts a memory's chain when it exceeds the configured maximum
// length. The creation entry always survives; with milestones kept, every
// merged/forked/crystallized entry survives too; the most recent fifth of
// the chain (at least one entry) is kept; and one synthetic squashed entry
// recording both lengths is appended.
func (o *Operations) Squash(ctx context.Context, memoryID string, opts SquashOptions) (*SquashResult, error) {
	keepMilestones := o.storage.cfg.KeepMilestones
	if opts.KeepMilestones != nil {
		keepMilestones = *opts.KeepMilestones
	}

	var result *SquashResult
	err := o.storage.do(ctx, writeOp{
		name:     "squash_chain",
		memoryID: memoryID,
		fn: func(ctx context.Context) error {
			p, err := o.storage.loadProvenance(ctx, memoryID)
			if err != nil {
				return err
			}
			if p == nil {
				result = &SquashResult{Status: "skipped"}
				return nil
			}

			original := len(p.Chain)
			if original <= o.storage.cfg.MaxChainLength {
				result = &SquashResult{
					Status:         "skipped",
					OriginalLength: original,
					NewLength:      original,
					SquashCount:    p.SquashCount,
				}
				return nil
			}

			keep := make(map[int]bool, original)
			keep[0] = true
			if keepMilestones {
				for i, e := range p.Chain {
					if e.Action.Milestone() {
						keep[i] = true
					}
				}
			}
			recent := (original + 4) / 5
			if recent < 1 {
				recent = 1
			}
			for i := original - recent; i < original; i++ {
				keep[i] = true
			}

			squashed := make([]Entry, 0, len(keep)+1)
			for i, e := range p.Chain {
				if keep[i] {
					squashed = append(squashed, e)
				}
			}

			// A squash must never grow the chain; when the kept set plus
			// the squashed marker would not shrink it, skip instead.
			if len(squashed)+1 >= original {
				result = &SquashResult{
					Status:         "skipped",
					OriginalLength: original,
					NewLength:      original,
					SquashCount:    p.SquashCount,
				}
				return nil
			}

			p.Chain = squashed
			p.Append(Entry{
				Actor:  "system",
				Action: ActionSquashed,
				Note:   fmt.Sprintf("squashed chain from %d to %d entries", original, len(squashed)+1),
				Extra: map[string]any{
					"original_length": original,
					"new_length":      len(squashed) + 1,
				},
			})
			p.Squashed = true
			p.SquashCount++

			result = &SquashResult{
				Status:         "squashed",
				OriginalLength: original,
				NewLength:      len(p.Chain),
				SquashCount:    p.SquashCount,
			}
			return o.storage.persistProvenance(ctx, p)
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CheckAndAutoSquash is a passive hook invoked opportunistically after
// edits. With auto-squash enabled and the chain past the configured
// maximum it triggers a squash; otherwise it is a no-op.
func (o *Operations) CheckAndAutoSquash(ctx context.Context, memoryID string) (*SquashResult, error) {
	if !o.storage.cfg.AutoSquash {
		return &SquashResult{Status: "skipped"}, nil
	}

	p, err := o.storage.GetProvenance(ctx, memoryID, true)
	if err != nil {
		return nil, err
	}
	if p == nil || len(p.Chain) <= o.storage.cfg.MaxChainLength {
		length := 0
		if p != nil {
			length = len(p.Chain)
		}
		return &SquashResult{Status: "skipped", OriginalLength: length, NewLength: length}, nil
	}

	return o.Squash(ctx, memoryID, SquashOptions{})
}
