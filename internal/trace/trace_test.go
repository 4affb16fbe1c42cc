package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rezahh107/Matrix2/internal/policy"
)

func TestCandidateCount_NoStagesYet(t *testing.T) {
	rec := &Record{}
	assert.Equal(t, -1, rec.CandidateCount())
}

func TestCandidateCount_ReflectsLastStage(t *testing.T) {
	rec := &Record{Stages: []StageResult{
		{Name: policy.StageType, BeforeCount: 5, AfterCount: 3},
		{Name: policy.StageGroup, BeforeCount: 3, AfterCount: 2},
	}}
	assert.Equal(t, 2, rec.CandidateCount())
}

func TestLastEliminatingStage_FindsFirstZeroingStage(t *testing.T) {
	rec := &Record{Stages: []StageResult{
		{Name: policy.StageType, BeforeCount: 5, AfterCount: 3},
		{Name: policy.StageGroup, BeforeCount: 3, AfterCount: 0, DropReason: "group_mismatch"},
		{Name: policy.StageGender, BeforeCount: 0, AfterCount: 0},
		{Name: policy.StageCapacityGate, BeforeCount: 0, AfterCount: 0},
	}}
	name, ok := rec.LastEliminatingStage()
	assert.True(t, ok)
	assert.Equal(t, policy.StageGroup, name)
}

func TestLastEliminatingStage_NoneWhenAllSurvive(t *testing.T) {
	rec := &Record{Stages: []StageResult{
		{Name: policy.StageType, BeforeCount: 5, AfterCount: 5},
		{Name: policy.StageCapacityGate, BeforeCount: 5, AfterCount: 2},
	}}
	_, ok := rec.LastEliminatingStage()
	assert.False(t, ok)
}
