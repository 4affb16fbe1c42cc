// Package cmd is the thin CLI shell around the allocation engine: a single
// Cobra root command carrying the `allocate` subcommand named in spec §6.
// Everything here is glue — reading boundary CSV/SQLite tables, invoking
// internal/batch, and writing the four boundary output tables — never a
// reimplementation of the out-of-scope spreadsheet/form/UI collaborators.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "allocator",
	Short: "Deterministic, policy-driven student-to-mentor allocation engine",
}

// Execute runs the CLI root command and exits the process with the exit
// code named in spec §6 (0 success / 2 policy-invalid / 3 input-invalid /
// 4 cancelled / 5 internal-error). Subcommands call os.Exit directly on
// failure (see exitForError in allocate.go), so a plain rootCmd.Execute() error here (cobra's
// own usage/flag-parsing errors) falls back to exit code 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Errorf("command failed: %v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(allocateCmd)
}
