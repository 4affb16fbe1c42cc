// Package domain holds the input-side record types the engine never
// mutates: Student and HistorySnapshot. Mentor and its mutable runtime
// state live in internal/mentor, since they have a materially different
// lifecycle (built once, then mutated per spec §4.6/§4.7).
package domain

// JoinValues holds the six integer join-key values for one student or
// mentor, positioned according to policy.JoinKeys (see policy.JoinGroupCode
// and friends). The engine addresses these only by position, never by a
// hardcoded name, so the policy file remains the single source of truth for
// what each position means.
type JoinValues [6]int

// Student is one row from the normalized student input table. It is built
// once by the normalizer and never mutated afterward (spec Non-goals: no
// in-place mutation of input tables).
type Student struct {
	RowIndex               int
	StudentID              string
	NationalCodeNormalized string // empty when the student has no national code
	Join                   JoinValues
	// JoinKeyError carries the Input Normalizer's integer-coercion failure
	// (spec §4.2) forward instead of discarding the row: non-empty means
	// one of the six join-key values could not be parsed as an integer, and
	// names which one. A student with JoinKeyError set still reaches
	// batch.Driver.Run, which is the one place spec §7 allows a
	// JoinKeyDataMissing outcome to be classified — a single malformed row
	// is a per-student failure, never a reason to abort the whole batch.
	JoinKeyError string
	// SchoolCodeRaw is the delimiter-joined school-code string as given;
	// normalize.SchoolTokens splits it on demand. Empty means no school
	// affiliation declared.
	SchoolCodeRaw string
}

// HistoryEntry is one row of a HistorySnapshot: the prior allocation a
// student's normalized national code is already tied to.
type HistoryEntry struct {
	MentorID         string
	CenterCode       string
	LastAllocationDate string
}

// HistorySnapshot is the read-only prior-allocation index, keyed by
// normalized national code. The core only ever reads it.
type HistorySnapshot map[string]HistoryEntry

// JoinValue returns the student's value for the given positional join key.
func (s *Student) JoinValue(pos int) int { return s.Join[pos] }
