package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"polyglot/internal/report"
)

var reportOutput string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report discovered sources per language and project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		found, err := application.locator.Locate(application.cfg.SourceRoot())
		if err != nil {
			return err
		}
		r := report.Collect(found, application.catalog)

		if cmd.Flags().Changed("output") {
			path, err := r.WriteCSVFile(reportOutput)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
			return nil
		}

		bold := cmd.OutOrStdout() == os.Stdout && isatty.IsTerminal(os.Stdout.Fd())
		return r.WriteTable(cmd.OutOrStdout(), bold)
	},
}
