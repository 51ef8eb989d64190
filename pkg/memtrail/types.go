package memtrail

import (
	"github.com/memtrail/memtrail/pkg/provenance"
	"github.com/memtrail/memtrail/pkg/store"
)

// Type re-exports for caller convenience

// Record is re-exported from the store package
type Record = store.Record

// Provenance is re-exported from the provenance package
type Provenance = provenance.Provenance

// Entry is re-exported from the provenance package
type Entry = provenance.Entry

// Branch is re-exported from the provenance package
type Branch = provenance.Branch

// Action is re-exported from the provenance package
type Action = provenance.Action

// Action constants re-exported from the provenance package
const (
	ActionCreated      = provenance.ActionCreated
	ActionRevised      = provenance.ActionRevised
	ActionMerged       = provenance.ActionMerged
	ActionForked       = provenance.ActionForked
	ActionConnected    = provenance.ActionConnected
	ActionSynthesized  = provenance.ActionSynthesized
	ActionWondered     = provenance.ActionWondered
	ActionCrystallized = provenance.ActionCrystallized
	ActionSquashed     = provenance.ActionSquashed
)

// MergeResult is re-exported from the provenance package
type MergeResult = provenance.MergeResult

// MergeStatus is re-exported from the provenance package
type MergeStatus = provenance.MergeStatus

// Merge status constants re-exported from the provenance package
const (
	MergeSuccess  = provenance.MergeSuccess
	MergeConflict = provenance.MergeConflict
)

// SquashResult is re-exported from the provenance package
type SquashResult = provenance.SquashResult

// ClassifyError is re-exported from the provenance package
var ClassifyError = provenance.ClassifyError
