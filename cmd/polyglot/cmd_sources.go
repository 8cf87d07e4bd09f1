package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"polyglot/internal/container"
	"polyglot/internal/harness"
	"polyglot/internal/testrun"
)

var (
	runSel      harness.Selection
	testSel     harness.Selection
	downloadSel harness.Selection
	watchSel    harness.Selection

	downloadParallel int
)

func addSelectionFlags(cmd *cobra.Command, sel *harness.Selection) {
	cmd.Flags().StringVarP(&sel.Source, "source", "s", "", "source filename (not path), e.g. hello-world.py")
	cmd.Flags().StringVarP(&sel.Project, "project", "p", "", "project identifier")
	cmd.Flags().StringVarP(&sel.Language, "language", "l", "", "language directory name")
	cmd.MarkFlagsMutuallyExclusive("source", "project", "language")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build and run sources",
	Long: `Builds and runs a source or a group of sources, each in its own container.
Filter by language, project or a single source; only one filter may be given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		return application.withManager(ctx, func(mgr *container.Manager) error {
			return application.harness(mgr, cmd.OutOrStdout()).Run(ctx, runSel)
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the container images sources need",
	Long: `Pulls every distinct image required by a source or a group of sources.
Filter by language, project or a single source; only one filter may be given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		return application.withManager(ctx, func(mgr *container.Manager) error {
			h := application.harness(mgr, cmd.OutOrStdout())
			h.Parallel = downloadParallel
			return h.Download(ctx, downloadSel)
		})
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the test suite for sources",
	Long: `Runs the external test suite restricted to a source or a group of sources
and exits with the suite's exit code.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		runner, err := testrun.NewRunner(application.cfg.Settings.TestRunner, application.cfg.TestRunnerDir())
		if err != nil {
			return err
		}
		runner.Stdout = cmd.OutOrStdout()
		runner.Stderr = cmd.ErrOrStderr()

		code, err := application.harness(nil, cmd.OutOrStdout()).Test(ctx, testSel, runner)
		if err != nil {
			return err
		}
		if code != 0 {
			return &exitCodeError{code: code}
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rerun sources whenever they are saved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		return application.withManager(ctx, func(mgr *container.Manager) error {
			err := application.harness(mgr, cmd.OutOrStdout()).Watch(ctx, watchSel)
			if errors.Is(err, harness.ErrNoSources) {
				return fmt.Errorf("nothing to watch: %w", err)
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	},
}
