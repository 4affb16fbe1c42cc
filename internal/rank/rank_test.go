package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezahh107/Matrix2/internal/alloerr"
	"github.com/rezahh107/Matrix2/internal/domain"
	"github.com/rezahh107/Matrix2/internal/mentor"
	"github.com/rezahh107/Matrix2/internal/policy"
)

func stateWith(id string, capacity, allocationsNew int) *mentor.State {
	m := mentor.New(id, capacity, allocationsNew, mentor.StatusActive, domain.JoinValues{}, nil, false)
	return mentor.NewState(&m)
}

func TestRankAndCommit_PicksLowestOccupancyRatio(t *testing.T) {
	candidates := []*mentor.State{
		stateWith("M1", 10, 5), // 0.5
		stateWith("M2", 10, 2), // 0.2
	}
	outcome := RankAndCommit(candidates, "", false)
	require.Equal(t, "success", outcome.Status)
	assert.Equal(t, "M2", outcome.MentorID)
	assert.Equal(t, ReasonMinOccupancyRatio, outcome.SelectionReason)
}

// TestRankAndCommit_TieBreaksByAllocationsNew: equal occupancy ratio falls
// through to fewer allocations_new.
func TestRankAndCommit_TieBreaksByAllocationsNew(t *testing.T) {
	candidates := []*mentor.State{
		stateWith("M1", 10, 4), // 0.4
		stateWith("M2", 20, 8), // 0.4, allocations_new 8
	}
	outcome := RankAndCommit(candidates, "", false)
	require.Equal(t, "success", outcome.Status)
	assert.Equal(t, "M1", outcome.MentorID)
	assert.Equal(t, ReasonTieBrokenByAllocations, outcome.SelectionReason)
}

// TestRankAndCommit_TieBreaksByNaturalMentorSortKey covers scenario S1: a
// full tie on occupancy ratio and allocations_new falls through to the
// mentor natural sort key.
func TestRankAndCommit_TieBreaksByNaturalMentorSortKey(t *testing.T) {
	candidates := []*mentor.State{
		stateWith("M10", 10, 2),
		stateWith("M2", 10, 2),
	}
	outcome := RankAndCommit(candidates, "", false)
	require.Equal(t, "success", outcome.Status)
	assert.Equal(t, "M2", outcome.MentorID) // natural sort: M2 < M10 numerically
	assert.Equal(t, ReasonTieBrokenByMentorID, outcome.SelectionReason)
}

func TestRankAndCommit_CommitsAgainstTheWinnerOnly(t *testing.T) {
	loser := stateWith("M2", 10, 5)
	winner := stateWith("M1", 10, 1)
	candidates := []*mentor.State{loser, winner}
	outcome := RankAndCommit(candidates, "", false)
	require.Equal(t, "success", outcome.Status)
	assert.Equal(t, 2, winner.AllocationsNew)
	assert.Equal(t, 5, loser.AllocationsNew) // untouched
}

func TestRankAndCommit_ReportsBeforeAfterSnapshot(t *testing.T) {
	candidates := []*mentor.State{stateWith("M1", 10, 2)}
	outcome := RankAndCommit(candidates, "", false)
	require.Equal(t, "success", outcome.Status)
	assert.Equal(t, 0.2, outcome.OccupancyRatioBefore)
	assert.Equal(t, 0.3, outcome.OccupancyRatioAfter)
	assert.Equal(t, 8, outcome.CapacityBefore)
	assert.Equal(t, 7, outcome.CapacityAfter)
}

func TestRankAndCommit_EmptyCandidatesClassifiesCapacityFull(t *testing.T) {
	outcome := RankAndCommit(nil, policy.StageCapacityGate, true)
	assert.Equal(t, "failed", outcome.Status)
	assert.Equal(t, alloerr.CapacityFull, outcome.ErrorKind)
	assert.NotEmpty(t, outcome.SuggestedActions)
}

func TestRankAndCommit_EmptyCandidatesClassifiesEligibilityNoMatch(t *testing.T) {
	outcome := RankAndCommit(nil, policy.StageSchool, true)
	assert.Equal(t, "failed", outcome.Status)
	assert.Equal(t, alloerr.EligibilityNoMatch, outcome.ErrorKind)
}

func TestRankAndCommit_EmptyCandidatesWithNoEliminatorIsEligibilityNoMatch(t *testing.T) {
	outcome := RankAndCommit(nil, "", false)
	assert.Equal(t, alloerr.EligibilityNoMatch, outcome.ErrorKind)
}

func TestRankAndCommit_PreviewCappedAtFive(t *testing.T) {
	candidates := make([]*mentor.State, 0, 7)
	for i := 0; i < 7; i++ {
		candidates = append(candidates, stateWith(string(rune('A'+i)), 10, i))
	}
	outcome := RankAndCommit(candidates, "", false)
	require.Equal(t, "success", outcome.Status)
	assert.Len(t, outcome.TieBreakers, 5)
}

func TestRankAndCommit_SingleCandidateReasonIsOccupancy(t *testing.T) {
	outcome := RankAndCommit([]*mentor.State{stateWith("M1", 10, 0)}, "", false)
	assert.Equal(t, ReasonMinOccupancyRatio, outcome.SelectionReason)
}
