// Package mentor models the mentor pool and its mutable per-batch runtime
// state. The pool itself (Mentor) is built once and never mutated; State is
// owned exclusively by the batch driver (spec §5's shared-resource policy).
package mentor

import (
	"github.com/rezahh107/Matrix2/internal/domain"
	"github.com/rezahh107/Matrix2/internal/normalize"
	"github.com/rezahh107/Matrix2/internal/policy"
)

// Status is a mentor's lifecycle tag.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusFrozen     Status = "FROZEN"
	statusRestricted        = "RESTRICTED_" // prefix; specific suffixes are policy data
)

// IsRestricted reports whether status carries the RESTRICTED_ prefix.
func (s Status) IsRestricted() bool {
	return len(s) > len(statusRestricted) && string(s[:len(statusRestricted)]) == statusRestricted
}

// Mentor is one immutable row from the mentor pool input. Declared capacity
// and eligibility values never change after construction; only the
// per-batch State derived from it changes.
type Mentor struct {
	MentorID            string
	SortKey             normalize.SortKey
	Capacity            int
	AllocationsNewStart int // allocations_new as given in the input, before this batch
	Status              Status
	Join                domain.JoinValues
	BoundSchools        map[string]bool
	HasSchoolConstraint bool
}

// New builds a Mentor from normalized fields, computing its natural sort
// key from the normalized ID and, for RESTRICTED_* profiles, intersecting
// the mentor's center eligibility with its declared restriction code
// (spec §4.5's mentor-pool pre-filter, applied once here rather than
// per-stage since it is a property of the mentor, not of any one student).
func New(mentorID string, capacity, allocationsNewStart int, status Status, join domain.JoinValues, boundSchools []string, hasSchoolConstraint bool) Mentor {
	bound := make(map[string]bool, len(boundSchools))
	for _, s := range boundSchools {
		bound[s] = true
	}
	if status.IsRestricted() {
		join[policy.JoinCenter] = join[policy.JoinRestriction]
	}
	return Mentor{
		MentorID:            mentorID,
		SortKey:             normalize.MentorSortKey(mentorID),
		Capacity:            capacity,
		AllocationsNewStart: allocationsNewStart,
		Status:              status,
		Join:                join,
		BoundSchools:        bound,
		HasSchoolConstraint: hasSchoolConstraint,
	}
}

// State is a mentor's mutable runtime record for one batch: remaining
// capacity and allocation count, plus the occupancy ratio derived from
// them. It is owned by the batch driver and never shared across batches.
type State struct {
	Mentor         *Mentor
	RemainingCap   int
	AllocationsNew int
	OccupancyRatio float64
}

// NewState derives the initial mutable state for m: remaining capacity
// starts at declared capacity minus whatever allocations_new the input
// already carried, and allocations_new starts at that same input value.
func NewState(m *Mentor) *State {
	st := &State{
		Mentor:         m,
		RemainingCap:   m.Capacity - m.AllocationsNewStart,
		AllocationsNew: m.AllocationsNewStart,
	}
	st.recomputeOccupancy()
	return st
}

// recomputeOccupancy applies the occupancy-ratio definition from the data
// model: allocations_new / declared capacity, with 0/0 treated as 0.
func (st *State) recomputeOccupancy() {
	if st.Mentor.Capacity <= 0 {
		st.OccupancyRatio = 0
		return
	}
	st.OccupancyRatio = float64(st.AllocationsNew) / float64(st.Mentor.Capacity)
}

// Commit decrements remaining capacity and increments allocations_new by
// one, recomputing occupancy ratio. It reports ok=false without mutating
// state if the commit would violate invariant I1 (remaining_capacity ≥ 0).
func (st *State) Commit() (ok bool) {
	if st.RemainingCap <= 0 {
		return false
	}
	st.RemainingCap--
	st.AllocationsNew++
	st.recomputeOccupancy()
	return true
}

// Pool is the per-batch collection of mentor states, keyed by mentor ID,
// plus the ordered list used for deterministic iteration.
type Pool struct {
	byID    map[string]*State
	ordered []*State
}

// NewPool builds a Pool from the immutable mentor list, excluding frozen
// mentors entirely per the mentor-pool pre-filter (spec §4.5): "mentors
// with mentor_status = FROZEN are removed from the pool entirely."
func NewPool(mentors []Mentor) *Pool {
	p := &Pool{byID: make(map[string]*State, len(mentors)), ordered: make([]*State, 0, len(mentors))}
	for i := range mentors {
		m := &mentors[i]
		if m.Status == StatusFrozen {
			continue
		}
		st := NewState(m)
		p.byID[m.MentorID] = st
		p.ordered = append(p.ordered, st)
	}
	return p
}

// All returns every mentor state in pool-construction order (stable, but
// not sorted — the ranker re-sorts its own candidate slice).
func (p *Pool) All() []*State { return p.ordered }

// ByID looks up a mentor's current state, returning (nil, false) if no
// such mentor exists in the (already frozen-filtered) pool.
func (p *Pool) ByID(id string) (*State, bool) {
	st, ok := p.byID[id]
	return st, ok
}

// TotalAllocationsNew sums allocations_new across the pool, including the
// allocations each mentor carried in from the input. The batch driver's
// post-batch sanity check does not call it; it sums the per-mentor change
// over the batch itself.
func (p *Pool) TotalAllocationsNew() int {
	total := 0
	for _, st := range p.ordered {
		total += st.AllocationsNew
	}
	return total
}

// AnyNegativeRemaining reports whether any mentor's remaining capacity went
// negative, the other half of the post-batch sanity check.
func (p *Pool) AnyNegativeRemaining() bool {
	for _, st := range p.ordered {
		if st.RemainingCap < 0 {
			return true
		}
	}
	return false
}
