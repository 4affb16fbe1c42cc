package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezahh107/Matrix2/internal/alloerr"
)

const validPolicyYAML = `
version: "1.0.3"
join_keys: ["group_code", "gender", "graduation_status", "center", "finance", "restriction"]
normal_statuses: [1, 2]
school_statuses: [3]
ranking_rules: ["min_occupancy_ratio", "min_allocations_new", "min_mentor_id"]
trace_stages:
  - name: type
    source_column: group_code
    kind: exact-int
    drop_reason: type_mismatch
  - name: group
    source_column: group_code
    kind: membership
    drop_reason: group_mismatch
  - name: gender
    source_column: gender
    kind: exact-int
    drop_reason: gender_mismatch
  - name: graduation_status
    source_column: graduation_status
    kind: exact-int
    drop_reason: graduation_status_mismatch
  - name: center
    source_column: center
    kind: wildcard-aware
    drop_reason: center_mismatch
  - name: finance
    source_column: finance
    kind: exact-int
    drop_reason: finance_mismatch
  - name: school
    source_column: school_code
    kind: wildcard-aware
    drop_reason: school_mismatch
  - name: capacity_gate
    source_column: capacity
    kind: capacity-gate
    drop_reason: capacity_exhausted
allocation_channels:
  - tag: GOLESTAN
    center_equals: [10]
  - tag: SADRA
    center_equals: [20]
school_binding:
  mode: global
  empty_tokens: ["", "0", "-"]
  zero_as_wildcard: true
`

func mustLoad(t *testing.T, doc string) *Config {
	t.Helper()
	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	return cfg
}

func TestLoad_ValidPolicy(t *testing.T) {
	cfg := mustLoad(t, validPolicyYAML)
	assert.Equal(t, "1.0.3", cfg.Version)
	assert.Len(t, cfg.TraceStages, 8)
	assert.Equal(t, StageOrder, stageNames(cfg.TraceStages))
	assert.Equal(t, InvalidCenterWildcard, cfg.CenterGate.InvalidCenterMode) // defaulted
}

func stageNames(stages []StageSpec) []StageName {
	out := make([]StageName, len(stages))
	for i, s := range stages {
		out[i] = s.Name
	}
	return out
}

func TestLoad_RejectsMajorMinorMismatch(t *testing.T) {
	doc := strings.Replace(validPolicyYAML, `version: "1.0.3"`, `version: "2.0.0"`, 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	var aerr *alloerr.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, alloerr.PolicyInvalid, aerr.Kind)
}

func TestLoad_RejectsDuplicateJoinKeys(t *testing.T) {
	doc := strings.Replace(validPolicyYAML,
		`join_keys: ["group_code", "gender", "graduation_status", "center", "finance", "restriction"]`,
		`join_keys: ["group_code", "group_code", "graduation_status", "center", "finance", "restriction"]`, 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
}

func TestLoad_RejectsWrongRankingOrder(t *testing.T) {
	doc := strings.Replace(validPolicyYAML,
		`ranking_rules: ["min_occupancy_ratio", "min_allocations_new", "min_mentor_id"]`,
		`ranking_rules: ["min_allocations_new", "min_occupancy_ratio", "min_mentor_id"]`, 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
}

func TestLoad_RejectsWrongStageCount(t *testing.T) {
	doc := strings.Replace(validPolicyYAML, "  - name: capacity_gate\n    source_column: capacity\n    kind: capacity-gate\n    drop_reason: capacity_exhausted\n", "", 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
}

func TestLoad_RejectsTypeGroupColumnMismatch(t *testing.T) {
	doc := strings.Replace(validPolicyYAML,
		"  - name: group\n    source_column: group_code\n    kind: membership\n    drop_reason: group_mismatch\n",
		"  - name: group\n    source_column: other_column\n    kind: membership\n    drop_reason: group_mismatch\n", 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
}

func TestLoad_RejectsEmptyChannels(t *testing.T) {
	doc := strings.Replace(validPolicyYAML,
		"allocation_channels:\n  - tag: GOLESTAN\n    center_equals: [10]\n  - tag: SADRA\n    center_equals: [20]\n",
		"allocation_channels: []\n", 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
}

func TestLoad_RejectsUnknownChannelTag(t *testing.T) {
	doc := strings.Replace(validPolicyYAML, "tag: GOLESTAN", "tag: MARS", 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
}

func TestLoad_RejectsBadSchoolBindingMode(t *testing.T) {
	doc := strings.Replace(validPolicyYAML, "mode: global", "mode: everywhere", 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
}

func TestLoad_AcceptsJSONEquivalent(t *testing.T) {
	// yaml.v3 parses JSON-compatible documents unchanged (SPEC_FULL §A.3).
	jsonDoc := `{
		"version": "1.0.0",
		"join_keys": ["a","b","c","d","e","f"],
		"ranking_rules": ["min_occupancy_ratio","min_allocations_new","min_mentor_id"],
		"trace_stages": [
			{"name":"type","source_column":"a","kind":"exact-int","drop_reason":"r1"},
			{"name":"group","source_column":"a","kind":"membership","drop_reason":"r2"},
			{"name":"gender","source_column":"b","kind":"exact-int","drop_reason":"r3"},
			{"name":"graduation_status","source_column":"c","kind":"exact-int","drop_reason":"r4"},
			{"name":"center","source_column":"d","kind":"wildcard-aware","drop_reason":"r5"},
			{"name":"finance","source_column":"e","kind":"exact-int","drop_reason":"r6"},
			{"name":"school","source_column":"g","kind":"wildcard-aware","drop_reason":"r7"},
			{"name":"capacity_gate","source_column":"capacity","kind":"capacity-gate","drop_reason":"r8"}
		],
		"allocation_channels": [{"tag":"GENERIC"}],
		"school_binding": {"mode":"global","empty_tokens":[""],"zero_as_wildcard":true}
	}`
	cfg, err := Load(strings.NewReader(jsonDoc))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", cfg.Version)
}
