package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scopestat/pkg/report"
)

// ErrReportsDiffer is returned by diff --exit-code when the reports differ.
var ErrReportsDiffer = errors.New("reports differ")

// NewDiffCommand creates the diff command.
func NewDiffCommand() *cobra.Command {
	var (
		noColor  bool
		exitCode bool
	)

	cmd := &cobra.Command{
		Use:   "diff <old-report> <new-report>",
		Short: "Show the line differences between two report files",
		Long: `Compare two report files of the same kind, typically analysis-files.csv
from two runs, and print removed (-) and added (+) lines followed by a count.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			after, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}

			ds, err := report.WriteDiff(cmd.OutOrStdout(), string(before), string(after), terminalConfig(noColor))
			if err != nil {
				return err
			}

			if exitCode && ds.Changed() {
				return ErrReportsDiffer
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&noColor, flagNoColor, false, "Disable colored output")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Fail when the reports differ")

	return cmd
}
