// Package rank implements the stable three-level comparator over surviving
// candidates, commit-under-capacity, and the empty-survivor failure
// classification (spec §4.6).
package rank

import (
	"math"
	"sort"

	"github.com/rezahh107/Matrix2/internal/alloerr"
	"github.com/rezahh107/Matrix2/internal/mentor"
	"github.com/rezahh107/Matrix2/internal/policy"
)

// occupancyEpsilon is the float-equality tolerance used when comparing
// occupancy ratios, per spec §4.6.
const occupancyEpsilon = 1e-9

// SelectionReason is the canonical string naming which rule first
// discriminated the chosen mentor from the runner-up.
type SelectionReason string

const (
	ReasonMinOccupancyRatio      SelectionReason = "min_occupancy_ratio"
	ReasonTieBrokenByAllocations SelectionReason = "tie_broken_by_allocations_new"
	ReasonTieBrokenByMentorID    SelectionReason = "tie_broken_by_mentor_id"
)

// TieBreaker is one entry of the top-k preview attached to a successful
// outcome: a candidate's ranking-relevant snapshot at selection time
// (SPEC_FULL §C.3).
type TieBreaker struct {
	MentorID       string
	OccupancyRatio float64
	AllocationsNew int
}

// maxTieBreakers caps the preview size (spec §4.6: "k ≤ 5").
const maxTieBreakers = 5

// Outcome is the per-student allocation result, success or failure.
type Outcome struct {
	Status               string // "success" or "failed" (callers choose the third "skipped_history" tag; see SPEC_FULL §D)
	MentorID             string
	OccupancyRatioBefore float64
	OccupancyRatioAfter  float64
	CapacityBefore       int
	CapacityAfter        int
	SelectionReason      SelectionReason
	TieBreakers          []TieBreaker
	ErrorKind            alloerr.Kind
	DetailedReason       string
	SuggestedActions     []string
	CandidateCount       int
}

// sortedCopy returns a stably sorted copy of candidates by
// (occupancy_ratio ↑, allocations_new ↑, mentor_sort_key ↑), never
// mutating the input slice.
func sortedCopy(candidates []*mentor.State) []*mentor.State {
	out := make([]*mentor.State, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out
}

func less(a, b *mentor.State) bool {
	if !occupancyEqual(a.OccupancyRatio, b.OccupancyRatio) {
		return a.OccupancyRatio < b.OccupancyRatio
	}
	if a.AllocationsNew != b.AllocationsNew {
		return a.AllocationsNew < b.AllocationsNew
	}
	return a.Mentor.SortKey.Less(b.Mentor.SortKey)
}

func occupancyEqual(a, b float64) bool {
	return math.Abs(a-b) < occupancyEpsilon
}

// RankAndCommit ranks candidates, commits the winner's capacity, and
// returns the resulting Outcome. lastEliminator/hadEliminator classify an
// empty candidate set per spec §4.6; callers pass the chain's trace.Record
// via trace.Record.LastEliminatingStage.
func RankAndCommit(candidates []*mentor.State, lastEliminator policy.StageName, hadEliminator bool) Outcome {
	if len(candidates) == 0 {
		return failureOutcome(lastEliminator, hadEliminator, 0)
	}
	ranked := sortedCopy(candidates)
	winner := ranked[0]

	before := mentor.State{
		Mentor:         winner.Mentor,
		RemainingCap:   winner.RemainingCap,
		AllocationsNew: winner.AllocationsNew,
		OccupancyRatio: winner.OccupancyRatio,
	}
	reason := selectionReason(ranked)
	if ok := winner.Commit(); !ok {
		return Outcome{
			Status:            "failed",
			ErrorKind:         alloerr.CapacityUnderflow,
			DetailedReason:    "commit would drive remaining_capacity negative",
			CandidateCount:    len(candidates),
		}
	}
	return Outcome{
		Status:               "success",
		MentorID:             winner.Mentor.MentorID,
		OccupancyRatioBefore: before.OccupancyRatio,
		OccupancyRatioAfter:  winner.OccupancyRatio,
		CapacityBefore:       before.RemainingCap,
		CapacityAfter:        winner.RemainingCap,
		SelectionReason:      reason,
		TieBreakers:          preview(ranked),
		CandidateCount:       len(candidates),
	}
}

// selectionReason determines which rule first discriminated the chosen
// mentor (ranked[0]) from the runner-up (ranked[1], if any).
func selectionReason(ranked []*mentor.State) SelectionReason {
	if len(ranked) < 2 {
		return ReasonMinOccupancyRatio
	}
	winner, runnerUp := ranked[0], ranked[1]
	if !occupancyEqual(winner.OccupancyRatio, runnerUp.OccupancyRatio) {
		return ReasonMinOccupancyRatio
	}
	if winner.AllocationsNew != runnerUp.AllocationsNew {
		return ReasonTieBrokenByAllocations
	}
	return ReasonTieBrokenByMentorID
}

func preview(ranked []*mentor.State) []TieBreaker {
	n := len(ranked)
	if n > maxTieBreakers {
		n = maxTieBreakers
	}
	out := make([]TieBreaker, n)
	for i := 0; i < n; i++ {
		out[i] = TieBreaker{
			MentorID:       ranked[i].Mentor.MentorID,
			OccupancyRatio: ranked[i].OccupancyRatio,
			AllocationsNew: ranked[i].AllocationsNew,
		}
	}
	return out
}

// failureOutcome classifies an empty-survivor failure per spec §4.6: if
// capacity_gate eliminated all candidates, CAPACITY_FULL; otherwise
// ELIGIBILITY_NO_MATCH.
func failureOutcome(lastEliminator policy.StageName, hadEliminator bool, candidateCount int) Outcome {
	kind := alloerr.EligibilityNoMatch
	reason := "no mentor matched all eligibility stages"
	if hadEliminator && lastEliminator == policy.StageCapacityGate {
		kind = alloerr.CapacityFull
		reason = "all otherwise-eligible mentors are at capacity"
	}
	return Outcome{
		Status:         "failed",
		ErrorKind:      kind,
		DetailedReason: reason,
		CandidateCount: candidateCount,
		SuggestedActions: suggestedActions(kind),
	}
}

func suggestedActions(kind alloerr.Kind) []string {
	switch kind {
	case alloerr.CapacityFull:
		return []string{"increase mentor capacity", "widen eligibility for this student's channel"}
	case alloerr.EligibilityNoMatch:
		return []string{"review eligibility columns for a data-entry mismatch", "confirm the policy's trace stages match the cohort"}
	default:
		return nil
	}
}
