// Package trace stores the per-student audit trail the engine produces.
// Its only engine dependency is internal/policy, for the stage and channel
// name types — it stores pure data, mirroring the teacher's sim/trace
// package — so that boundary adapters can serialize it without pulling in
// engine internals.
package trace

import "github.com/rezahh107/Matrix2/internal/policy"

// StageResult is one row of a student's eight-stage trace: the surviving
// candidate count before and after a stage ran, and the drop reason if the
// stage eliminated every remaining candidate.
type StageResult struct {
	Name        policy.StageName
	BeforeCount int
	AfterCount  int
	DropReason  string // empty unless AfterCount == 0 and BeforeCount > 0
}

// HistoryStatus is the dedupe outcome recorded on a trace record.
type HistoryStatus string

const (
	HistoryAlreadyAllocated HistoryStatus = "already_allocated"
	HistoryNewCandidate     HistoryStatus = "new_candidate"
)

// Record is the complete per-student audit trail: row identity, the eight
// ordered stage results, the routed channel, and the dedupe verdict. It is
// built once during allocation and never mutated after emission.
type Record struct {
	RowIndex          int
	StudentID         string
	Stages            []StageResult // always len(policy.StageOrder) once complete
	AllocationChannel policy.Channel
	HistoryStatus     HistoryStatus
	DedupeReason      string // "prior_allocation" when HistoryStatus is already_allocated
}

// CandidateCount returns the survivor count after the last recorded stage,
// or -1 if no stage has run yet.
func (r *Record) CandidateCount() int {
	if len(r.Stages) == 0 {
		return -1
	}
	return r.Stages[len(r.Stages)-1].AfterCount
}

// LastEliminatingStage returns the name of the stage that actually drove
// the candidate set to zero — the first stage with a nonempty input and an
// empty output, since every stage after it trivially reports AfterCount
// zero too. Used by the ranker's failure classification (spec §4.6).
func (r *Record) LastEliminatingStage() (policy.StageName, bool) {
	for _, s := range r.Stages {
		if s.BeforeCount > 0 && s.AfterCount == 0 {
			return s.Name, true
		}
	}
	return "", false
}
