package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"polyglot/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string
	timeout    time.Duration

	// Logger
	logger *zap.Logger

	// Loaded once per invocation by PersistentPreRunE.
	application *app
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "polyglot",
	Short: "Build, run and test sample programs across many languages",
	Long: `polyglot discovers sample programs in a source tree, matches them against
the project catalog in .polyglot.yml, and builds, runs or tests each one
inside its own throwaway container.

Every directory with a testinfo.yml describes how its sources are named and
which container image runs them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		if err := logging.Initialize(a.cfg.Settings.Logging.Options(verbose)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logging.Get(logging.CategoryBoot).Zap()
		logger.Debug("configuration loaded",
			zap.String("path", a.cfg.Path),
			zap.String("source_root", a.cfg.SourceRoot()),
			zap.Int("projects", a.catalog.Len()))
		application = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to .polyglot.yml (default: discovered from the workspace)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Directory to discover configuration from (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Overall deadline for the command (0 = none)")

	// Selection flags
	addSelectionFlags(runCmd, &runSel)
	addSelectionFlags(testCmd, &testSel)
	addSelectionFlags(downloadCmd, &downloadSel)
	addSelectionFlags(watchCmd, &watchSel)

	downloadCmd.Flags().IntVar(&downloadParallel, "parallel", 4, "Maximum concurrent image pulls")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write the report as CSV to `REPORT_PATH` instead of stdout")

	// Add commands to root
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitCodeError propagates a child process exit code without printing.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
