// Package channel implements the allocation-channel router: the ordered,
// policy-declared predicate chain that tags each new candidate with one of
// SCHOOL / GOLESTAN / SADRA / GENERIC. It performs no I/O and never looks
// up mentors.
package channel

import (
	"github.com/rezahh107/Matrix2/internal/domain"
	"github.com/rezahh107/Matrix2/internal/normalize"
	"github.com/rezahh107/Matrix2/internal/policy"
)

// Router evaluates allocation_channels rules top-down for each student.
type Router struct {
	rules []policy.ChannelRule
	// centerOverrides forces a channel for a given center join-key value,
	// evaluated before the declared rules (SPEC_FULL §C.1, the
	// --center-manager CLI override).
	centerOverrides map[int]policy.Channel
}

// New builds a Router from the policy's declared channel rules.
func New(cfg *policy.Config) *Router {
	return &Router{rules: cfg.AllocationChannels}
}

// WithCenterOverrides returns a copy of r with a center-code → channel
// override map applied ahead of the declared rules. Used by the CLI's
// --center-manager K=V flags.
func (r *Router) WithCenterOverrides(overrides map[int]policy.Channel) *Router {
	return &Router{rules: r.rules, centerOverrides: overrides}
}

// Route returns the allocation channel for s. It never returns an unknown
// tag (invariant I5): no matching rule, and no override, yields GENERIC.
func (r *Router) Route(s *domain.Student) policy.Channel {
	center := s.JoinValue(policy.JoinCenter)
	if tag, ok := r.centerOverrides[center]; ok {
		return tag
	}
	tokens := normalize.SchoolTokens(s.SchoolCodeRaw)
	for _, rule := range r.rules {
		if ruleMatches(rule, s, tokens) {
			return rule.Tag
		}
	}
	return policy.ChannelGeneric
}

func ruleMatches(rule policy.ChannelRule, s *domain.Student, schoolTokens []string) bool {
	if len(rule.CenterEquals) > 0 && !containsInt(rule.CenterEquals, s.JoinValue(policy.JoinCenter)) {
		return false
	}
	if len(rule.TypeEquals) > 0 && !containsInt(rule.TypeEquals, s.JoinValue(policy.JoinGroupCode)) {
		return false
	}
	if len(rule.SchoolCodeIn) > 0 && !intersects(rule.SchoolCodeIn, schoolTokens) {
		return false
	}
	return true
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}
