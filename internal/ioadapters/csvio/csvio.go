// Package csvio adapts the core's boundary contracts (spec §6) to CSV, the
// simplest concrete realization of "normalized tabular inputs" — the
// spreadsheet/form-intake collaborators named Out-of-scope in spec §1 are
// expected to produce (or consume) this same shape upstream/downstream of
// the CLI.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rezahh107/Matrix2/internal/batch"
	"github.com/rezahh107/Matrix2/internal/domain"
	"github.com/rezahh107/Matrix2/internal/mentor"
	"github.com/rezahh107/Matrix2/internal/normalize"
	"github.com/rezahh107/Matrix2/internal/policy"
	"github.com/rezahh107/Matrix2/internal/trace"
)

// header reads and indexes a CSV header row, so column order in the source
// file never has to match the fixed order the core addresses fields by.
type header struct {
	index map[string]int
}

func readHeader(r *csv.Reader) (header, error) {
	row, err := r.Read()
	if err != nil {
		return header{}, fmt.Errorf("reading csv header: %w", err)
	}
	idx := make(map[string]int, len(row))
	for i, name := range row {
		idx[strings.TrimSpace(name)] = i
	}
	return header{index: idx}, nil
}

func (h header) get(row []string, name string) string {
	i, ok := h.index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// ReadStudents parses the students boundary table (spec §6): student_id,
// national_code (optional), the six join-key columns named by
// cfg.JoinKeys, and school_code (optional, delimiter-joined).
//
// A row whose join-key value fails integer coercion is still returned as a
// Student, with JoinKeyError naming the offending column (spec §4.2's Input
// Normalizer step) — per spec §7, JoinKeyDataMissingError is a per-student
// failure, not grounds to abort reading the remaining rows. It is
// batch.Driver.Run, not this adapter, that turns JoinKeyError into a
// classified, logged outcome.
func ReadStudents(r io.Reader, cfg *policy.Config) ([]domain.Student, error) {
	cr := csv.NewReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	var students []domain.Student
	rowIndex := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading students row %d: %w", rowIndex, err)
		}
		s := domain.Student{
			RowIndex:      rowIndex,
			StudentID:     strings.TrimSpace(h.get(row, "student_id")),
			SchoolCodeRaw: h.get(row, "school_code"),
		}
		if nc := h.get(row, "national_code"); nc != "" {
			s.NationalCodeNormalized = normalize.NationalCode(nc)
		}
		for pos, colName := range cfg.JoinKeys {
			val, ok := normalize.Int(h.get(row, colName))
			if !ok {
				s.JoinKeyError = fmt.Sprintf("row %d (student %s): join key %q is not an integer", rowIndex, s.StudentID, colName)
				break
			}
			s.Join[pos] = val
		}
		students = append(students, s)
		rowIndex++
	}
	return students, nil
}

// ReadMentors parses the mentor pool boundary table (spec §6): mentor_id,
// the six eligibility columns named by cfg.JoinKeys, capacity,
// allocations_new, mentor_status, and a delimiter-joined bound-school-codes
// column.
//
// A row with a malformed capacity, allocations_new, or join-key value is
// excluded from the returned pool and reported as a warning rather than
// aborting the whole load — spec §7 has no per-mentor outcome analogous to
// batch.LogEntry, so unlike ReadStudents's JoinKeyError field there is
// nowhere downstream to carry a bad mentor row forward; skipping it keeps
// one malformed row from taking down every other mentor's capacity.
func ReadMentors(r io.Reader, cfg *policy.Config) ([]mentor.Mentor, []string, error) {
	cr := csv.NewReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, nil, err
	}
	var mentors []mentor.Mentor
	var warnings []string
	rowIndex := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading mentor row %d: %w", rowIndex, err)
		}
		id := strings.TrimSpace(h.get(row, "mentor_id"))
		normalizedID := normalize.Text(id)

		capacity, err := strconv.Atoi(strings.TrimSpace(h.get(row, "capacity")))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("mentor row %d (%s): capacity is not an integer, skipping row", rowIndex, id))
			rowIndex++
			continue
		}
		allocNew, err := strconv.Atoi(strings.TrimSpace(h.get(row, "allocations_new")))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("mentor row %d (%s): allocations_new is not an integer, skipping row", rowIndex, id))
			rowIndex++
			continue
		}

		var join domain.JoinValues
		badJoinKey := false
		for pos, colName := range cfg.JoinKeys {
			val, ok := normalize.Int(h.get(row, colName))
			if !ok {
				warnings = append(warnings, fmt.Sprintf("mentor row %d (%s): join key %q is not an integer, skipping row", rowIndex, id, colName))
				badJoinKey = true
				break
			}
			join[pos] = val
		}
		if badJoinKey {
			rowIndex++
			continue
		}

		boundRaw := h.get(row, "bound_school_codes")
		boundSchools := normalize.SchoolTokens(boundRaw)

		m := mentor.New(normalizedID, capacity, allocNew, mentor.Status(h.get(row, "mentor_status")), join, boundSchools, len(boundSchools) > 0)
		mentors = append(mentors, m)
		rowIndex++
	}
	return mentors, warnings, nil
}

// ReadHistory parses the history snapshot boundary table (spec §6):
// national_code_normalized, mentor_id, center_code, last_allocation_date.
func ReadHistory(r io.Reader) (domain.HistorySnapshot, error) {
	cr := csv.NewReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	snapshot := make(domain.HistorySnapshot)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading history row: %w", err)
		}
		code := normalize.NationalCode(h.get(row, "national_code_normalized"))
		if code == "" {
			continue
		}
		snapshot[code] = domain.HistoryEntry{
			MentorID:           strings.TrimSpace(h.get(row, "mentor_id")),
			CenterCode:         strings.TrimSpace(h.get(row, "center_code")),
			LastAllocationDate: strings.TrimSpace(h.get(row, "last_allocation_date")),
		}
	}
	return snapshot, nil
}

// WriteAssignments emits the assignments output table (spec §6).
func WriteAssignments(w io.Writer, rows []batch.AssignmentRow) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	header := []string{"row_index", "student_id", "mentor_id", "occupancy_ratio_before", "occupancy_ratio_after",
		"capacity_before", "capacity_after", "allocation_channel", "selection_reason"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing assignments header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.RowIndex),
			r.StudentID,
			r.MentorID,
			strconv.FormatFloat(r.OccupancyRatioBefore, 'f', -1, 64),
			strconv.FormatFloat(r.OccupancyRatioAfter, 'f', -1, 64),
			strconv.Itoa(r.CapacityBefore),
			strconv.Itoa(r.CapacityAfter),
			string(r.AllocationChannel),
			string(r.SelectionReason),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing assignment row %d: %w", r.RowIndex, err)
		}
	}
	return cw.Error()
}

// WriteTrace emits the trace output table (spec §6): eight stage rows per
// student plus the history/dedupe columns repeated on every row, since CSV
// has no nested-record shape.
func WriteTrace(w io.Writer, records []*trace.Record) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	header := []string{"row_index", "student_id", "stage_name", "before_count", "after_count", "drop_reason",
		"allocation_channel", "history_status", "dedupe_reason"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing trace header: %w", err)
	}
	for _, rec := range records {
		for _, stage := range rec.Stages {
			row := []string{
				strconv.Itoa(rec.RowIndex),
				rec.StudentID,
				string(stage.Name),
				strconv.Itoa(stage.BeforeCount),
				strconv.Itoa(stage.AfterCount),
				stage.DropReason,
				string(rec.AllocationChannel),
				string(rec.HistoryStatus),
				rec.DedupeReason,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing trace row for student %s stage %s: %w", rec.StudentID, stage.Name, err)
			}
		}
	}
	return cw.Error()
}

// WriteLog emits the log output table (spec §6).
func WriteLog(w io.Writer, entries []batch.LogEntry) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	header := []string{"row_index", "student_id", "status", "error_kind", "detailed_reason", "suggested_actions",
		"candidate_count", "allocation_channel"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing log header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			strconv.Itoa(e.RowIndex),
			e.StudentID,
			e.Status,
			string(e.ErrorKind),
			e.DetailedReason,
			strings.Join(e.SuggestedActions, "; "),
			strconv.Itoa(e.CandidateCount),
			string(e.AllocationChannel),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing log row %d: %w", e.RowIndex, err)
		}
	}
	return cw.Error()
}

// WriteSummary emits the summary output table (spec §6) as key/value pairs,
// since its shape (scalars plus three small histograms) doesn't fit a single
// flat row.
func WriteSummary(w io.Writer, s batch.Summary) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"metric", "key", "value"}); err != nil {
		return fmt.Errorf("writing summary header: %w", err)
	}
	rows := [][]string{
		{"run_id", "", s.RunID},
		{"total_students", "", strconv.Itoa(s.TotalStudents)},
		{"success_count", "", strconv.Itoa(s.SuccessCount)},
		{"failed_count", "", strconv.Itoa(s.FailedCount)},
		{"skipped_history_count", "", strconv.Itoa(s.SkippedHistoryCount)},
		{"history_mentor_match_ratio", "", strconv.FormatFloat(s.HistoryMentorMatchRatio, 'f', -1, 64)},
		{"incomplete", "", strconv.FormatBool(s.Incomplete)},
	}
	for _, r := range rows {
		if err := cw.Write(r); err != nil {
			return fmt.Errorf("writing summary row %q: %w", r[0], err)
		}
	}
	for _, ch := range sortedChannels(s.ChannelCounts) {
		if err := cw.Write([]string{"channel_count", string(ch), strconv.Itoa(s.ChannelCounts[ch])}); err != nil {
			return fmt.Errorf("writing channel_count row for %s: %w", ch, err)
		}
	}
	for _, stage := range policy.StageOrder {
		n, ok := s.StageSurvivalCounts[stage]
		if !ok {
			continue
		}
		if err := cw.Write([]string{"stage_survival_count", string(stage), strconv.Itoa(n)}); err != nil {
			return fmt.Errorf("writing stage_survival_count row for %s: %w", stage, err)
		}
	}
	for _, stage := range policy.StageOrder {
		n, ok := s.StageEliminationCounts[stage]
		if !ok {
			continue
		}
		if err := cw.Write([]string{"stage_elimination_count", string(stage), strconv.Itoa(n)}); err != nil {
			return fmt.Errorf("writing stage_elimination_count row for %s: %w", stage, err)
		}
	}
	return cw.Error()
}

// sortedChannels returns counts's keys in lexicographic order, so
// summary.csv's channel_count rows are byte-identical across runs
// (spec §8's determinism property) instead of following Go's randomized
// map iteration order.
func sortedChannels(counts map[policy.Channel]int) []policy.Channel {
	out := make([]policy.Channel, 0, len(counts))
	for ch := range counts {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
