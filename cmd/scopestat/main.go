// Package main provides the entry point for the scopestat CLI tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scopestat/cmd/scopestat/commands"
	"github.com/Sumatoshi-tech/scopestat/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scopestat",
		Short: "Scopestat - batch static analysis aggregation",
		Long: `Scopestat runs an external per-file analyzer over a source tree and
aggregates the results into reports and statistics.

Commands:
  run       Analyze a directory and write reports
  stats     Recompute statistics from a saved batch result
  diff      Compare two report files
  cache     Inspect the result cache and run journal
  mcp       Start the MCP server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewStatsCommand())
	rootCmd.AddCommand(commands.NewDiffCommand())
	rootCmd.AddCommand(commands.NewCacheCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
