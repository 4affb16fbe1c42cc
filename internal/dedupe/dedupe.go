// Package dedupe implements the pure, idempotent history-deduplication
// step: tagging each student as already allocated (and excluded from the
// allocation queue) or a new candidate, against a read-only HistorySnapshot.
package dedupe

import (
	"github.com/rezahh107/Matrix2/internal/domain"
	"github.com/rezahh107/Matrix2/internal/trace"
)

// PriorAllocationReason is the canonical dedupe_reason for a student found
// in the history snapshot.
const PriorAllocationReason = "prior_allocation"

// Result is the per-student verdict: whether the student is already
// allocated, and if so, the historic mentor/center it was matched to.
type Result struct {
	Status            trace.HistoryStatus
	DedupeReason      string
	HistoryMentorID   string
	HistoryCenterCode string
}

// Check looks up s.NationalCodeNormalized in snapshot and returns the
// dedupe verdict. It is pure: the same (s, snapshot) pair always yields the
// same Result, and calling it twice never mutates either input (spec §4.3,
// and the Idempotence-of-dedupe testable property in spec §8).
func Check(s *domain.Student, snapshot domain.HistorySnapshot) Result {
	if s.NationalCodeNormalized == "" {
		return Result{Status: trace.HistoryNewCandidate}
	}
	entry, found := snapshot[s.NationalCodeNormalized]
	if !found {
		return Result{Status: trace.HistoryNewCandidate}
	}
	return Result{
		Status:            trace.HistoryAlreadyAllocated,
		DedupeReason:      PriorAllocationReason,
		HistoryMentorID:   entry.MentorID,
		HistoryCenterCode: entry.CenterCode,
	}
}
