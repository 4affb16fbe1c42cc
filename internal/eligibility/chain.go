// Package eligibility implements the eight-stage ordered filter chain
// (spec §4.5) that narrows a mentor pool down to one student's eligible
// candidates, recording a trace.Record of before/after counts as it goes.
package eligibility

import (
	"github.com/rezahh107/Matrix2/internal/domain"
	"github.com/rezahh107/Matrix2/internal/mentor"
	"github.com/rezahh107/Matrix2/internal/normalize"
	"github.com/rezahh107/Matrix2/internal/policy"
	"github.com/rezahh107/Matrix2/internal/trace"
)

// Chain applies the policy-declared trace stages in their fixed order. It
// never mutates the candidate slices it is given — each stage produces a
// new slice view, per spec §4.5.
type Chain struct {
	cfg *policy.Config
}

// New builds a Chain bound to cfg.
func New(cfg *policy.Config) *Chain {
	return &Chain{cfg: cfg}
}

// Run filters pool's candidates for student s, returning the survivors (as
// mentor states, so the ranker can read/commit against them directly) and
// the student's eight-stage trace record.
func (c *Chain) Run(s *domain.Student, pool *mentor.Pool) ([]*mentor.State, *trace.Record) {
	rec := &trace.Record{
		RowIndex:  s.RowIndex,
		StudentID: s.StudentID,
		Stages:    make([]trace.StageResult, 0, len(policy.StageOrder)),
	}
	candidates := pool.All()
	for _, name := range policy.StageOrder {
		spec, _ := c.cfg.StageSpecFor(name)
		before := len(candidates)
		after := c.applyStage(name, s, candidates)
		result := trace.StageResult{Name: name, BeforeCount: before, AfterCount: len(after)}
		if before > 0 && len(after) == 0 {
			result.DropReason = spec.DropReason
		}
		rec.Stages = append(rec.Stages, result)
		candidates = after
	}
	return candidates, rec
}

func (c *Chain) applyStage(name policy.StageName, s *domain.Student, candidates []*mentor.State) []*mentor.State {
	switch name {
	case policy.StageType:
		return c.stageType(s, candidates)
	case policy.StageGroup:
		return c.stageGroup(s, candidates)
	case policy.StageGender:
		return filterExactInt(candidates, policy.JoinGender, s.JoinValue(policy.JoinGender))
	case policy.StageGraduationStatus:
		return filterExactInt(candidates, policy.JoinGraduationStatus, s.JoinValue(policy.JoinGraduationStatus))
	case policy.StageCenter:
		return c.stageCenter(s, candidates)
	case policy.StageFinance:
		return filterExactInt(candidates, policy.JoinFinance, s.JoinValue(policy.JoinFinance))
	case policy.StageSchool:
		return c.stageSchool(s, candidates)
	case policy.StageCapacityGate:
		return stageCapacityGate(candidates)
	default:
		return nil
	}
}

func filterExactInt(candidates []*mentor.State, pos int, want int) []*mentor.State {
	out := make([]*mentor.State, 0, len(candidates))
	for _, st := range candidates {
		if st.Mentor.Join[pos] == want {
			out = append(out, st)
		}
	}
	return out
}

// stageType: gates on the student's group-code value belonging to a
// recognized status class (normal or school) — nothing more. The raw
// group-code comparison against mentors belongs to stageGroup alone: spec
// §4.1 requires the two stages to interact ("one-to-many mapping... is
// required, not a bug"), which only holds if stageType leaves the mentor
// set untouched for stageGroup's crosswalk to actually widen. See
// DESIGN.md's "group" stage bucket/synonym crosswalk note.
func (c *Chain) stageType(s *domain.Student, candidates []*mentor.State) []*mentor.State {
	val := s.JoinValue(policy.JoinGroupCode)
	if !containsInt(c.cfg.NormalStatuses, val) && !containsInt(c.cfg.SchoolStatuses, val) {
		return nil
	}
	return candidates
}

// stageGroup: the actual group-code equality check, widened by the
// bucket/synonym crosswalk — a mentor survives if its raw group code is
// either the student's value or a declared equivalent of it
// (policy.Config.GroupCrosswalk).
func (c *Chain) stageGroup(s *domain.Student, candidates []*mentor.State) []*mentor.State {
	val := s.JoinValue(policy.JoinGroupCode)
	equivalents := c.crosswalkSet(val)
	out := make([]*mentor.State, 0, len(candidates))
	for _, st := range candidates {
		if equivalents[st.Mentor.Join[policy.JoinGroupCode]] {
			out = append(out, st)
		}
	}
	return out
}

func (c *Chain) crosswalkSet(val int) map[int]bool {
	set := map[int]bool{val: true}
	if group, ok := c.cfg.GroupCrosswalk[val]; ok {
		for _, v := range group {
			set[v] = true
		}
	}
	for canonical, group := range c.cfg.GroupCrosswalk {
		for _, v := range group {
			if v == val {
				set[canonical] = true
			}
		}
	}
	return set
}

// stageCenter: equality, except the student's value of 0 is an explicit
// wildcard no-op (spec §4.5), and an out-of-range value is resolved per
// policy.CenterGate.InvalidCenterMode (SPEC_FULL §C.4).
func (c *Chain) stageCenter(s *domain.Student, candidates []*mentor.State) []*mentor.State {
	val := s.JoinValue(policy.JoinCenter)
	if val == 0 {
		return candidates
	}
	if c.isInvalidCenter(val) {
		if c.cfg.CenterGate.InvalidCenterMode == policy.InvalidCenterFail {
			return nil
		}
		return candidates // wildcard downgrade: no-op
	}
	return filterExactInt(candidates, policy.JoinCenter, val)
}

func (c *Chain) isInvalidCenter(val int) bool {
	g := c.cfg.CenterGate
	if g.MinValid == 0 && g.MaxValid == 0 {
		return false // no range configured: every non-zero value is valid
	}
	return val < g.MinValid || val > g.MaxValid
}

// stageSchool: global-binding mentors (no school constraint) always pass.
// Constrained mentors require the student's normalized school tokens to
// intersect the mentor's bound set, unless every token is an empty/wildcard
// token per policy flags, in which case the stage is a no-op for everyone.
func (c *Chain) stageSchool(s *domain.Student, candidates []*mentor.State) []*mentor.State {
	tokens := normalize.SchoolTokens(s.SchoolCodeRaw)
	if c.allTokensWildcard(tokens) {
		return candidates
	}
	out := make([]*mentor.State, 0, len(candidates))
	for _, st := range candidates {
		if !st.Mentor.HasSchoolConstraint {
			out = append(out, st)
			continue
		}
		if tokensIntersectBound(tokens, st.Mentor.BoundSchools) {
			out = append(out, st)
		}
	}
	return out
}

func (c *Chain) allTokensWildcard(tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	empty := make(map[string]bool, len(c.cfg.SchoolBinding.EmptyTokens))
	for _, t := range c.cfg.SchoolBinding.EmptyTokens {
		empty[t] = true
	}
	for _, t := range tokens {
		if empty[t] {
			continue
		}
		if t == "0" && c.cfg.SchoolBinding.ZeroAsWildcard {
			continue
		}
		return false
	}
	return true
}

func tokensIntersectBound(tokens []string, bound map[string]bool) bool {
	for _, t := range tokens {
		if bound[t] {
			return true
		}
	}
	return false
}

func stageCapacityGate(candidates []*mentor.State) []*mentor.State {
	out := make([]*mentor.State, 0, len(candidates))
	for _, st := range candidates {
		if st.RemainingCap > 0 {
			out = append(out, st)
		}
	}
	return out
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
