package csvio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezahh107/Matrix2/internal/batch"
	"github.com/rezahh107/Matrix2/internal/mentor"
	"github.com/rezahh107/Matrix2/internal/policy"
	"github.com/rezahh107/Matrix2/internal/trace"
)

func testJoinCfg() *policy.Config {
	return &policy.Config{JoinKeys: policy.JoinKeys{"group_code", "gender", "graduation_status", "center", "finance", "restriction"}}
}

func TestReadStudents_ParsesRowsInOrder(t *testing.T) {
	csv := "student_id,national_code,group_code,gender,graduation_status,center,finance,restriction,school_code\n" +
		"s1,۰۰۱۲۳,1,1,1,10,1,0,123\n" +
		"s2,,1,1,1,10,1,0,\n"
	students, err := ReadStudents(strings.NewReader(csv), testJoinCfg())
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "s1", students[0].StudentID)
	assert.Equal(t, "00123", students[0].NationalCodeNormalized) // Persian digits folded
	assert.Equal(t, 10, students[0].Join[policy.JoinCenter])
	assert.Equal(t, 0, students[0].RowIndex)
	assert.Equal(t, 1, students[1].RowIndex)
	assert.Empty(t, students[1].NationalCodeNormalized)
}

// TestReadStudents_CarriesNonIntegerJoinKeyForward confirms a malformed
// join key never aborts the load: the student is still returned, with
// JoinKeyError naming the bad column, so batch.Driver.Run (not this
// adapter) classifies it as a per-student JoinKeyDataMissing outcome.
func TestReadStudents_CarriesNonIntegerJoinKeyForward(t *testing.T) {
	csv := "student_id,group_code,gender,graduation_status,center,finance,restriction\n" +
		"s1,abc,1,1,10,1,0\n" +
		"s2,1,1,1,10,1,0\n"
	students, err := ReadStudents(strings.NewReader(csv), testJoinCfg())
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.NotEmpty(t, students[0].JoinKeyError)
	assert.Contains(t, students[0].JoinKeyError, "group_code")
	assert.Empty(t, students[1].JoinKeyError)
}

func TestReadMentors_ParsesStatusAndBoundSchools(t *testing.T) {
	csv := "mentor_id,group_code,gender,graduation_status,center,finance,restriction,capacity,allocations_new,mentor_status,bound_school_codes\n" +
		"M1,1,1,1,10,1,0,5,2,ACTIVE,123;456\n"
	mentors, warnings, err := ReadMentors(strings.NewReader(csv), testJoinCfg())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, mentors, 1)
	assert.Equal(t, "M1", mentors[0].MentorID)
	assert.Equal(t, 5, mentors[0].Capacity)
	assert.Equal(t, 2, mentors[0].AllocationsNewStart)
	assert.Equal(t, mentor.StatusActive, mentors[0].Status)
	assert.True(t, mentors[0].HasSchoolConstraint)
	assert.True(t, mentors[0].BoundSchools["123"])
	assert.True(t, mentors[0].BoundSchools["456"])
}

// TestReadMentors_SkipsRowWithNonIntegerCapacity confirms one malformed
// mentor row is excluded from the pool (with a warning) rather than
// aborting the whole load — mentors have no per-row outcome analogous to
// batch.LogEntry, so the adapter itself is where a bad row stops.
func TestReadMentors_SkipsRowWithNonIntegerCapacity(t *testing.T) {
	csv := "mentor_id,group_code,gender,graduation_status,center,finance,restriction,capacity,allocations_new,mentor_status,bound_school_codes\n" +
		"M1,1,1,1,10,1,0,x,2,ACTIVE,\n" +
		"M2,1,1,1,10,1,0,5,2,ACTIVE,\n"
	mentors, warnings, err := ReadMentors(strings.NewReader(csv), testJoinCfg())
	require.NoError(t, err)
	require.Len(t, mentors, 1)
	assert.Equal(t, "M2", mentors[0].MentorID)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "capacity")
}

func TestReadHistory_SkipsBlankNationalCode(t *testing.T) {
	csv := "national_code_normalized,mentor_id,center_code,last_allocation_date\n" +
		",M1,10,2026-01-01\n" +
		"00123,M2,20,2026-02-02\n"
	snapshot, err := ReadHistory(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Len(t, snapshot, 1)
	entry, ok := snapshot["00123"]
	require.True(t, ok)
	assert.Equal(t, "M2", entry.MentorID)
	assert.Equal(t, "20", entry.CenterCode)
}

func TestWriteAssignments_RoundTripsColumns(t *testing.T) {
	var buf strings.Builder
	rows := []batch.AssignmentRow{{RowIndex: 0, StudentID: "s1", MentorID: "M1", OccupancyRatioAfter: 0.25,
		CapacityBefore: 4, CapacityAfter: 3, AllocationChannel: policy.ChannelGolestan, SelectionReason: "min_occupancy_ratio"}}
	require.NoError(t, WriteAssignments(&buf, rows))
	out := buf.String()
	assert.Contains(t, out, "s1,M1")
	assert.Contains(t, out, "GOLESTAN")
}

func TestWriteTrace_EmitsOneRowPerStage(t *testing.T) {
	var buf strings.Builder
	records := []*trace.Record{{
		RowIndex: 0, StudentID: "s1",
		Stages: []trace.StageResult{
			{Name: policy.StageType, BeforeCount: 3, AfterCount: 3},
			{Name: policy.StageCapacityGate, BeforeCount: 3, AfterCount: 0, DropReason: "capacity_exhausted"},
		},
	}}
	require.NoError(t, WriteTrace(&buf, records))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3) // header + 2 stage rows
}

func TestWriteSummary_IncludesHistogramRows(t *testing.T) {
	var buf strings.Builder
	s := batch.Summary{
		RunID:               "r1",
		TotalStudents:        2,
		ChannelCounts:        map[policy.Channel]int{policy.ChannelGolestan: 1},
		StageSurvivalCounts:  map[policy.StageName]int{policy.StageType: 2},
		StageEliminationCounts: map[policy.StageName]int{policy.StageCapacityGate: 1},
	}
	require.NoError(t, WriteSummary(&buf, s))
	out := buf.String()
	assert.Contains(t, out, "run_id")
	assert.Contains(t, out, "channel_count,GOLESTAN,1")
	assert.Contains(t, out, "stage_survival_count,type,2")
	assert.Contains(t, out, "stage_elimination_count,capacity_gate,1")
}
