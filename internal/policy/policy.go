// Package policy loads and validates the declarative PolicyConfig that
// parameterizes every stage of the allocation engine. The engine embeds no
// domain constants of its own — column names, stage order, channel
// predicates, and binding mode all come from here.
package policy

// StageName is one of the eight fixed trace-stage identifiers, in the
// order the policy must declare them.
type StageName string

const (
	StageType             StageName = "type"
	StageGroup            StageName = "group"
	StageGender           StageName = "gender"
	StageGraduationStatus StageName = "graduation_status"
	StageCenter           StageName = "center"
	StageFinance          StageName = "finance"
	StageSchool           StageName = "school"
	StageCapacityGate     StageName = "capacity_gate"
)

// StageOrder is the fixed, required sequence of trace stages.
var StageOrder = []StageName{
	StageType, StageGroup, StageGender, StageGraduationStatus,
	StageCenter, StageFinance, StageSchool, StageCapacityGate,
}

// RankingRule is one of the three fixed ranking-rule tags, in required
// order.
type RankingRule string

const (
	RuleMinOccupancyRatio RankingRule = "min_occupancy_ratio"
	RuleMinAllocationsNew RankingRule = "min_allocations_new"
	RuleMinMentorID       RankingRule = "min_mentor_id"
)

// RankingOrder is the fixed, required ranking-rule sequence.
var RankingOrder = []RankingRule{RuleMinOccupancyRatio, RuleMinAllocationsNew, RuleMinMentorID}

// Channel is one of the four fixed allocation-channel tags.
type Channel string

const (
	ChannelSchool   Channel = "SCHOOL"
	ChannelGolestan Channel = "GOLESTAN"
	ChannelSadra    Channel = "SADRA"
	ChannelGeneric  Channel = "GENERIC"
)

// ValidChannels enumerates the allowed channel tags.
var ValidChannels = map[Channel]bool{
	ChannelSchool: true, ChannelGolestan: true, ChannelSadra: true, ChannelGeneric: true,
}

// StageKind is the comparison mode a trace stage declares. The loader
// validates it; the eligibility chain picks each stage's comparison by
// stage name and does not read Kind.
type StageKind string

const (
	KindExactInt      StageKind = "exact-int"
	KindMembership    StageKind = "membership"
	KindWildcardAware StageKind = "wildcard-aware"
	KindCapacityGate  StageKind = "capacity-gate"
)

// StageSpec is one declared trace-stage descriptor.
type StageSpec struct {
	Name          StageName `yaml:"name" json:"name"`
	SourceColumn  string    `yaml:"source_column" json:"source_column"`
	Kind          StageKind `yaml:"kind" json:"kind"`
	DropReason    string    `yaml:"drop_reason" json:"drop_reason"`
}

// BindingMode is the school_binding.mode enum.
type BindingMode string

const (
	BindingGlobal     BindingMode = "global"
	BindingRestricted BindingMode = "restricted"
)

// SchoolBinding controls how the school stage treats the student's
// empty/zero school tokens. Mode is validated by the loader but not read by
// the school stage: a mentor without an explicit constraint passes whatever
// the mode is.
type SchoolBinding struct {
	Mode           BindingMode `yaml:"mode" json:"mode"`
	EmptyTokens    []string    `yaml:"empty_tokens" json:"empty_tokens"`
	ZeroAsWildcard bool        `yaml:"zero_as_wildcard" json:"zero_as_wildcard"`
}

// InvalidCenterMode resolves the Open Question in spec §9 (SPEC_FULL §D):
// whether an out-of-range center value is a hard failure or a wildcard
// downgrade.
type InvalidCenterMode string

const (
	InvalidCenterWildcard InvalidCenterMode = "wildcard"
	InvalidCenterFail     InvalidCenterMode = "fail"
)

// CenterGate configures the center stage's handling of out-of-range values,
// beyond the zero-wildcard rule that always applies.
type CenterGate struct {
	InvalidCenterMode InvalidCenterMode `yaml:"invalid_center_mode" json:"invalid_center_mode"`
	MinValid          int               `yaml:"min_valid" json:"min_valid"`
	MaxValid          int               `yaml:"max_valid" json:"max_valid"`
}

// ChannelRule is one predicate->tag mapping evaluated top-down by the
// channel router. Predicate fields are all optional; an empty field never
// participates in matching. A student must satisfy every non-empty field
// to match.
type ChannelRule struct {
	Tag Channel `yaml:"tag" json:"tag"`
	// CenterEquals matches when the student's center join-key value is in
	// this list (empty list = wildcard, always matches on this field).
	CenterEquals []int `yaml:"center_equals,omitempty" json:"center_equals,omitempty"`
	// SchoolCodeIn matches when the student's school-code token set
	// intersects this list.
	SchoolCodeIn []string `yaml:"school_code_in,omitempty" json:"school_code_in,omitempty"`
	// TypeEquals matches on the group-code join key.
	TypeEquals []int `yaml:"type_equals,omitempty" json:"type_equals,omitempty"`
}

// JoinKeys is the six fixed, ordered, distinct join-key column names. The
// engine never hardcodes the names themselves (Policy-First, spec §9); it
// only hardcodes these six *positions*, since the trace stages and channel
// predicates are defined against them positionally:
//
//	0 GroupCode      — shared source column for the "type" and "group" stages
//	1 Gender
//	2 GraduationStatus
//	3 Center
//	4 Finance
//	5 Restriction    — intersected into RESTRICTED_* mentor profiles
type JoinKeys [6]string

// Names for accessing the six positional join keys without magic indices.
const (
	JoinGroupCode = iota
	JoinGender
	JoinGraduationStatus
	JoinCenter
	JoinFinance
	JoinRestriction
)

// Config is the immutable, validated policy object threaded through every
// component. It is built once per run by Load and never mutated afterward.
type Config struct {
	Version            string        `yaml:"version" json:"version"`
	JoinKeys           JoinKeys      `yaml:"join_keys" json:"join_keys"`
	NormalStatuses     []int         `yaml:"normal_statuses" json:"normal_statuses"`
	SchoolStatuses     []int         `yaml:"school_statuses" json:"school_statuses"`
	RankingRules       []RankingRule `yaml:"ranking_rules" json:"ranking_rules"`
	TraceStages        []StageSpec   `yaml:"trace_stages" json:"trace_stages"`
	AllocationChannels []ChannelRule `yaml:"allocation_channels" json:"allocation_channels"`
	SchoolBinding      SchoolBinding `yaml:"school_binding" json:"school_binding"`
	CenterGate         CenterGate    `yaml:"center_gate" json:"center_gate"`
	// GroupCrosswalk maps a canonical group/type code to the set of raw
	// codes treated as equivalent to it by the "group" stage's bucket
	// equality (spec §4.5: "same column used for bucket/synonym crosswalk
	// equality"). The "type" stage ignores this: it only checks the
	// student's raw value against NormalStatuses/SchoolStatuses.
	GroupCrosswalk map[int][]int `yaml:"group_crosswalk,omitempty" json:"group_crosswalk,omitempty"`
}

// StageSpecFor returns the declared stage descriptor for name, and whether
// it was found. Config is guaranteed valid by the time callers can obtain
// one, so this always succeeds for the eight fixed names in practice.
func (c *Config) StageSpecFor(name StageName) (StageSpec, bool) {
	for _, s := range c.TraceStages {
		if s.Name == name {
			return s, true
		}
	}
	return StageSpec{}, false
}
