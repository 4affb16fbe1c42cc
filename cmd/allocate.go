package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rezahh107/Matrix2/internal/alloerr"
	"github.com/rezahh107/Matrix2/internal/batch"
	"github.com/rezahh107/Matrix2/internal/domain"
	"github.com/rezahh107/Matrix2/internal/ioadapters/csvio"
	"github.com/rezahh107/Matrix2/internal/ioadapters/sqlitehistory"
	"github.com/rezahh107/Matrix2/internal/mentor"
	"github.com/rezahh107/Matrix2/internal/policy"
)

const (
	exitSuccess       = 0
	exitPolicyInvalid = 2
	exitInputInvalid  = 3
	exitCancelled     = 4
	exitInternalError = 5
)

var (
	studentsPath      string
	poolPath          string
	historyPath       string
	policyPath        string
	outputDir         string
	centerManagerSpec []string
)

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Run one allocation batch against the given policy and input tables",
	Run:   runAllocate,
}

func init() {
	allocateCmd.Flags().StringVar(&studentsPath, "students", "", "Path to the students CSV table")
	allocateCmd.Flags().StringVar(&poolPath, "pool", "", "Path to the mentor pool CSV table")
	allocateCmd.Flags().StringVar(&historyPath, "history", "", "Path to the history snapshot (.csv or .db/.sqlite); omit for an empty snapshot")
	allocateCmd.Flags().StringVar(&policyPath, "policy", "", "Path to the policy file (YAML or JSON)")
	allocateCmd.Flags().StringVar(&outputDir, "output", "", "Directory to write assignments.csv, trace.csv, log.csv, summary.csv into")
	allocateCmd.Flags().StringArrayVar(&centerManagerSpec, "center-manager", nil, "Center-code channel override K=V, e.g. 12=SCHOOL (repeatable)")
	_ = allocateCmd.MarkFlagRequired("students")
	_ = allocateCmd.MarkFlagRequired("pool")
	_ = allocateCmd.MarkFlagRequired("policy")
	_ = allocateCmd.MarkFlagRequired("output")
}

func runAllocate(cmd *cobra.Command, args []string) {
	cfg, err := policy.LoadFile(policyPath)
	if err != nil {
		logrus.Errorf("policy invalid: %v", err)
		os.Exit(exitPolicyInvalid)
	}

	students, mentors, history, err := loadInputs(cfg)
	if err != nil {
		logrus.Errorf("input invalid: %v", err)
		os.Exit(exitInputInvalid)
	}

	overrides, err := parseCenterManager(centerManagerSpec)
	if err != nil {
		logrus.Errorf("input invalid: %v", err)
		os.Exit(exitInputInvalid)
	}

	pool := mentor.NewPool(mentors)
	driver := batch.New(cfg, pool)
	logrus.Infof("starting allocation: %d students, %d mentors", len(students), len(mentors))

	result, err := driver.Run(students, history, batch.Options{
		Progress: func(percent int, message string) {
			logrus.Debugf("progress %d%%: %s", percent, message)
		},
		CenterOverrides: overrides,
	})
	if err != nil {
		exitForError(err)
		return
	}
	// The core never generates its own run identifier (spec §1 Non-goals:
	// no randomness inside the core); the CLI stamps one on here, after
	// Run has already produced a byte-identical-across-runs Result.
	result.Summary.RunID = uuid.New().String()

	if err := writeOutputs(outputDir, result); err != nil {
		logrus.Errorf("writing outputs: %v", err)
		os.Exit(exitInternalError)
	}

	logrus.Infof("allocation complete: %d success, %d failed, %d skipped_history",
		result.Summary.SuccessCount, result.Summary.FailedCount, result.Summary.SkippedHistoryCount)
	os.Exit(exitSuccess)
}

// exitForError maps a fatal *alloerr.Error from the batch driver to the
// process exit code named in spec §6.
func exitForError(err error) {
	kind := alloerr.Internal
	if aerr, ok := err.(*alloerr.Error); ok {
		kind = aerr.Kind
	}
	switch kind {
	case alloerr.Cancelled:
		logrus.Warnf("batch cancelled: %v", err)
		os.Exit(exitCancelled)
	case alloerr.PolicyInvalid:
		logrus.Errorf("policy invalid: %v", err)
		os.Exit(exitPolicyInvalid)
	default:
		logrus.Errorf("internal error: %v", err)
		os.Exit(exitInternalError)
	}
}

func loadInputs(cfg *policy.Config) ([]domain.Student, []mentor.Mentor, domain.HistorySnapshot, error) {
	studentsFile, err := os.Open(studentsPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening students file: %w", err)
	}
	defer studentsFile.Close()
	students, err := csvio.ReadStudents(studentsFile, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading students: %w", err)
	}

	poolFile, err := os.Open(poolPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening pool file: %w", err)
	}
	defer poolFile.Close()
	mentors, warnings, err := csvio.ReadMentors(poolFile, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading mentor pool: %w", err)
	}
	for _, w := range warnings {
		logrus.Warnf("mentor pool: %s", w)
	}

	history, err := loadHistory()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading history: %w", err)
	}

	return students, mentors, history, nil
}

func loadHistory() (domain.HistorySnapshot, error) {
	if historyPath == "" {
		return domain.HistorySnapshot{}, nil
	}
	if isSQLitePath(historyPath) {
		return sqlitehistory.Read(historyPath)
	}
	f, err := os.Open(historyPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csvio.ReadHistory(f)
}

func isSQLitePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	default:
		return false
	}
}

// parseCenterManager parses repeatable K=V center-override flags (spec §6,
// SPEC_FULL §C.1) into the channel.Router override map.
func parseCenterManager(specs []string) (map[int]policy.Channel, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make(map[int]policy.Channel, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("--center-manager %q must be K=V", spec)
		}
		center, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("--center-manager %q: center code must be an integer", spec)
		}
		tag := policy.Channel(strings.TrimSpace(parts[1]))
		if !policy.ValidChannels[tag] {
			return nil, fmt.Errorf("--center-manager %q: unknown channel tag %q", spec, tag)
		}
		out[center] = tag
	}
	return out, nil
}

func writeOutputs(dir string, result batch.Result) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	writers := []struct {
		name string
		fn   func(path string) error
	}{
		{"assignments.csv", func(path string) error { return withFile(path, func(f *os.File) error { return csvio.WriteAssignments(f, result.Assignments) }) }},
		{"trace.csv", func(path string) error { return withFile(path, func(f *os.File) error { return csvio.WriteTrace(f, result.Trace) }) }},
		{"log.csv", func(path string) error { return withFile(path, func(f *os.File) error { return csvio.WriteLog(f, result.Log) }) }},
		{"summary.csv", func(path string) error { return withFile(path, func(f *os.File) error { return csvio.WriteSummary(f, result.Summary) }) }},
	}
	for _, w := range writers {
		if err := w.fn(filepath.Join(dir, w.name)); err != nil {
			return fmt.Errorf("writing %s: %w", w.name, err)
		}
	}
	return nil
}

func withFile(path string, fn func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}
