// Package batch implements the sequential per-student pipeline (spec §4.7,
// §5): dedupe → channel route → eligibility chain → rank/commit, keeping
// mentor state coherent across the batch and producing the four boundary
// output tables plus summary metrics. It owns mentor.State for the run's
// lifetime; the only mutation, rank.RankAndCommit's commit, is made from
// inside its loop.
package batch

import (
	"github.com/rezahh107/Matrix2/internal/alloerr"
	"github.com/rezahh107/Matrix2/internal/channel"
	"github.com/rezahh107/Matrix2/internal/dedupe"
	"github.com/rezahh107/Matrix2/internal/domain"
	"github.com/rezahh107/Matrix2/internal/eligibility"
	"github.com/rezahh107/Matrix2/internal/mentor"
	"github.com/rezahh107/Matrix2/internal/metrics"
	"github.com/rezahh107/Matrix2/internal/policy"
	"github.com/rezahh107/Matrix2/internal/rank"
	"github.com/rezahh107/Matrix2/internal/trace"
)

// StatusSuccess, StatusFailed and StatusSkippedHistory are the three
// output-row statuses. SPEC_FULL §D resolves the Open Question in spec §9
// in favor of a distinct skipped_history status rather than a success row
// with no side effect, so invariant I4 stays visible to auditors.
const (
	StatusSuccess        = "success"
	StatusFailed         = "failed"
	StatusSkippedHistory = "skipped_history"
)

// ProgressReporter is the pure, non-blocking progress hook the core
// invokes between students (spec §5). It must never mutate core state.
type ProgressReporter func(percent int, message string)

// CancelCheck is the cooperative cancellation hook, polled between
// students (spec §5).
type CancelCheck func() bool

// Options configures one Run. All fields are optional; a nil Progress or
// Cancel is treated as "never reports" / "never cancelled".
type Options struct {
	Progress        ProgressReporter
	Cancel          CancelCheck
	CenterOverrides map[int]policy.Channel
}

// AssignmentRow is one row of the assignments output table (spec §6).
type AssignmentRow struct {
	RowIndex             int
	StudentID            string
	MentorID             string
	OccupancyRatioBefore float64
	OccupancyRatioAfter  float64
	CapacityBefore       int
	CapacityAfter        int
	AllocationChannel    policy.Channel
	SelectionReason      rank.SelectionReason
}

// LogEntry is one row of the log output table (spec §6).
type LogEntry struct {
	RowIndex          int
	StudentID         string
	Status            string
	ErrorKind         alloerr.Kind
	DetailedReason    string
	SuggestedActions  []string
	CandidateCount    int
	AllocationChannel policy.Channel
}

// Summary is the aggregate metrics table (spec §4.7, SPEC_FULL §C.2/§C.5).
// RunID is left empty by the core — spec §1's Non-goals forbid randomness
// inside the core, so a stable run identifier is the caller's concern; the
// CLI stamps one onto Result.Summary after Run returns (see cmd/allocate.go).
type Summary struct {
	RunID                   string
	TotalStudents           int
	SuccessCount            int
	FailedCount             int
	SkippedHistoryCount     int
	ChannelCounts           map[policy.Channel]int
	StageSurvivalCounts     map[policy.StageName]int
	StageEliminationCounts  map[policy.StageName]int
	HistoryMentorMatchRatio float64
	Incomplete              bool
}

// Result bundles everything one Run produces.
type Result struct {
	Assignments []AssignmentRow
	Trace       []*trace.Record
	Log         []LogEntry
	Summary     Summary
}

// Driver owns the mutable mentor.Pool for exactly one Run and nothing
// else — the shared-resource policy in spec §5 forbids reuse of a Driver
// (or the Pool it was built from) across runs.
type Driver struct {
	cfg     *policy.Config
	pool    *mentor.Pool
	router  *channel.Router
	chain   *eligibility.Chain
	metrics *metrics.Collector
}

// New builds a Driver for one batch over pool, parameterized by cfg.
func New(cfg *policy.Config, pool *mentor.Pool) *Driver {
	return &Driver{
		cfg:     cfg,
		pool:    pool,
		router:  channel.New(cfg),
		chain:   eligibility.New(cfg),
		metrics: metrics.New(),
	}
}

// Run iterates students in input order, keeping mentor state coherent, and
// returns the four boundary output tables. A cooperative cancellation
// aborts with Result.Summary.Incomplete = true and a *alloerr.Error of
// kind Cancelled; already-committed outcomes in Result remain valid.
func (d *Driver) Run(students []domain.Student, history domain.HistorySnapshot, opts Options) (Result, error) {
	if len(opts.CenterOverrides) > 0 {
		d.router = d.router.WithCenterOverrides(opts.CenterOverrides)
	}
	res := Result{
		Assignments: make([]AssignmentRow, 0, len(students)),
		Trace:       make([]*trace.Record, 0, len(students)),
		Log:         make([]LogEntry, 0, len(students)),
	}

	var historyTagged, historyMatched int

	for i := range students {
		if opts.Cancel != nil && opts.Cancel() {
			res.Summary = d.summarize(len(students), true)
			return res, alloerr.New(alloerr.Cancelled, "batch cancelled at row %d of %d", i, len(students))
		}
		s := &students[i]
		d.reportProgress(opts.Progress, i, len(students), s.StudentID)

		if s.JoinKeyError != "" {
			d.metrics.ObserveOutcome(StatusFailed)
			res.Log = append(res.Log, LogEntry{
				RowIndex:       s.RowIndex,
				StudentID:      s.StudentID,
				Status:         StatusFailed,
				ErrorKind:      alloerr.JoinKeyDataMissing,
				DetailedReason: s.JoinKeyError,
				SuggestedActions: []string{"correct the malformed join-key column and resubmit this row"},
			})
			continue
		}

		ded := dedupe.Check(s, history)
		rec := &trace.Record{
			RowIndex:          s.RowIndex,
			StudentID:         s.StudentID,
			HistoryStatus:     ded.Status,
			DedupeReason:      ded.DedupeReason,
			AllocationChannel: d.router.Route(s),
		}

		if ded.Status == trace.HistoryAlreadyAllocated {
			historyTagged++
			survivors, chainRec := d.chain.Run(s, d.pool)
			rec.Stages = chainRec.Stages
			if mentorSurvives(survivors, ded.HistoryMentorID) {
				historyMatched++
			}
			d.metrics.ObserveChannel(rec.AllocationChannel)
			d.metrics.ObserveOutcome(StatusSkippedHistory)
			res.Trace = append(res.Trace, rec)
			res.Log = append(res.Log, LogEntry{
				RowIndex:          s.RowIndex,
				StudentID:         s.StudentID,
				Status:            StatusSkippedHistory,
				DetailedReason:    "national code already present in history snapshot",
				CandidateCount:    len(survivors),
				AllocationChannel: rec.AllocationChannel,
			})
			continue
		}

		survivors, chainRec := d.chain.Run(s, d.pool)
		rec.Stages = chainRec.Stages
		res.Trace = append(res.Trace, rec)
		d.metrics.ObserveChannel(rec.AllocationChannel)

		lastStage, hadEliminator := chainRec.LastEliminatingStage()
		outcome := rank.RankAndCommit(survivors, lastStage, hadEliminator)

		if outcome.Status == "success" {
			d.metrics.ObserveOutcome(StatusSuccess)
			res.Assignments = append(res.Assignments, AssignmentRow{
				RowIndex:             s.RowIndex,
				StudentID:            s.StudentID,
				MentorID:             outcome.MentorID,
				OccupancyRatioBefore: outcome.OccupancyRatioBefore,
				OccupancyRatioAfter:  outcome.OccupancyRatioAfter,
				CapacityBefore:       outcome.CapacityBefore,
				CapacityAfter:        outcome.CapacityAfter,
				AllocationChannel:    rec.AllocationChannel,
				SelectionReason:      outcome.SelectionReason,
			})
			res.Log = append(res.Log, LogEntry{
				RowIndex:          s.RowIndex,
				StudentID:         s.StudentID,
				Status:            StatusSuccess,
				CandidateCount:    outcome.CandidateCount,
				AllocationChannel: rec.AllocationChannel,
			})
		} else {
			d.metrics.ObserveOutcome(StatusFailed)
			if outcome.ErrorKind == alloerr.CapacityUnderflow {
				res.Summary = d.summarize(len(students), true)
				return res, alloerr.New(alloerr.CapacityUnderflow, "row %d: commit would drive remaining_capacity negative", s.RowIndex)
			}
			if hadEliminator {
				d.metrics.ObserveStageElimination(lastStage)
			}
			res.Log = append(res.Log, LogEntry{
				RowIndex:          s.RowIndex,
				StudentID:         s.StudentID,
				Status:            StatusFailed,
				ErrorKind:         outcome.ErrorKind,
				DetailedReason:    outcome.DetailedReason,
				SuggestedActions:  outcome.SuggestedActions,
				CandidateCount:    outcome.CandidateCount,
				AllocationChannel: rec.AllocationChannel,
			})
		}
	}

	if err := d.sanityCheck(len(res.Assignments)); err != nil {
		res.Summary = d.summarize(len(students), true)
		res.Summary.StageSurvivalCounts = stageSurvivalCounts(res.Trace)
		return res, err
	}

	d.reportProgress(opts.Progress, len(students), len(students), "done")
	res.Summary = d.finalSummary(len(students), historyTagged, historyMatched)
	res.Summary.StageSurvivalCounts = stageSurvivalCounts(res.Trace)
	return res, nil
}

// stageSurvivalCounts sums AfterCount per stage across every processed
// student's trace record — the per-stage aggregate survival counters
// spec §4.7 asks the batch driver to produce.
func stageSurvivalCounts(records []*trace.Record) map[policy.StageName]int {
	counts := make(map[policy.StageName]int, len(policy.StageOrder))
	for _, rec := range records {
		for _, stage := range rec.Stages {
			counts[stage.Name] += stage.AfterCount
		}
	}
	return counts
}

func mentorSurvives(survivors []*mentor.State, mentorID string) bool {
	if mentorID == "" {
		return false
	}
	for _, st := range survivors {
		if st.Mentor.MentorID == mentorID {
			return true
		}
	}
	return false
}

// sanityCheck implements the post-batch invariant check from spec §4.7:
// allocations committed must equal the pool's total allocations_new delta,
// and no mentor's remaining capacity went negative.
func (d *Driver) sanityCheck(successCount int) error {
	if d.pool.AnyNegativeRemaining() {
		return alloerr.New(alloerr.Internal, "sanity check failed: a mentor's remaining_capacity went negative")
	}
	total := 0
	for _, st := range d.pool.All() {
		total += st.AllocationsNew - st.Mentor.AllocationsNewStart
	}
	if total != successCount {
		return alloerr.New(alloerr.Internal, "sanity check failed: committed allocations %d != success outcomes %d", total, successCount)
	}
	return nil
}

func (d *Driver) reportProgress(report ProgressReporter, done, total int, message string) {
	if report == nil || total == 0 {
		return
	}
	percent := done * 100 / total
	report(percent, message)
}

func (d *Driver) finalSummary(total, historyTagged, historyMatched int) Summary {
	s := d.summarize(total, false)
	if historyTagged > 0 {
		s.HistoryMentorMatchRatio = float64(historyMatched) / float64(historyTagged)
	}
	return s
}

// summarize folds the metrics collector's gathered counts and basic totals
// into a Summary; callers attach StageSurvivalCounts separately since it is
// derived from Result.Trace, not the metrics collector. Incomplete is set
// on cancellation or an aborted sanity check.
func (d *Driver) summarize(total int, incomplete bool) Summary {
	channelCounts := make(map[policy.Channel]int)
	for ch, n := range d.metrics.ChannelCounts() {
		channelCounts[policy.Channel(ch)] = n
	}
	stageElim := make(map[policy.StageName]int)
	for st, n := range d.metrics.StageEliminationCounts() {
		stageElim[policy.StageName(st)] = n
	}
	outcomes := d.metrics.OutcomeCounts()
	return Summary{
		TotalStudents:          total,
		SuccessCount:           outcomes[StatusSuccess],
		FailedCount:            outcomes[StatusFailed],
		SkippedHistoryCount:    outcomes[StatusSkippedHistory],
		ChannelCounts:          channelCounts,
		StageEliminationCounts: stageElim,
		Incomplete:             incomplete,
	}
}
