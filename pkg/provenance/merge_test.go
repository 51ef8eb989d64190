package provenance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConservativeMerger(t *testing.T) {
	merged, ok := ConservativeMerger{}.Merge("", "target text", "source text")
	assert.False(t, ok)
	assert.Equal(t, "", merged)

	// Even a trivial divergence is a conflict.
	_, ok = ConservativeMerger{}.Merge("base", "a", "a ")
	assert.False(t, ok)
}

func TestConflictContent_Markers(t *testing.T) {
	detail := &ConflictDetail{
		TargetBranch:  "main",
		SourceBranch:  "experiment",
		TargetContent: "blue",
		SourceContent: "violet",
	}

	out := conflictContent(true, detail)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, "<<<<<<< main", lines[0])
	assert.Equal(t, "blue", lines[1])
	assert.Equal(t, "=======", lines[2])
	assert.Equal(t, "violet", lines[3])
	assert.Equal(t, ">>>>>>> experiment", lines[4])
	assert.NotContains(t, out, "|||||||")
}

func TestConflictContent_AncestorBlock(t *testing.T) {
	detail := &ConflictDetail{
		TargetBranch:  "main",
		SourceBranch:  "experiment",
		TargetContent: "blue",
		SourceContent: "violet",
		Ancestor:      "grey",
	}

	out := conflictContent(true, detail)
	assert.Contains(t, out, "||||||| common ancestor\ngrey\n")

	// The ancestor block sits between the target and the separator.
	idx := strings.Index(out, "|||||||")
	sep := strings.Index(out, "=======")
	assert.Greater(t, sep, idx)
}

func TestConflictContent_Labeled(t *testing.T) {
	detail := &ConflictDetail{
		TargetBranch:  "main",
		SourceBranch:  "experiment",
		TargetContent: "blue",
		SourceContent: "violet",
	}

	out := conflictContent(false, detail)
	assert.Contains(t, out, "=== main ===\nblue")
	assert.Contains(t, out, "=== experiment ===\nviolet")
	assert.NotContains(t, out, "<<<<<<<")
}
