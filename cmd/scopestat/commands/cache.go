package commands

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scopestat/pkg/cache"
	"github.com/Sumatoshi-tech/scopestat/pkg/config"
)

const defaultRunsLimit = 20

func openStore(cfg *config.Config, logger *slog.Logger) (*cache.Store, error) {
	memory, err := cfg.CacheMemoryBytes()
	if err != nil {
		return nil, err
	}

	store, err := cache.Open(cfg.Cache.Path, cache.Options{Logger: logger, MemoryBytes: memory})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	return store, nil
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand() *cobra.Command {
	var (
		configPath string
		cachePath  string
	)

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the result cache and run journal",
	}

	cmd.PersistentFlags().StringVar(&configPath, flagConfig, "", "Path to a config file")
	cmd.PersistentFlags().StringVar(&cachePath, "cache-path", config.DefaultCachePath, "Cache database path")

	load := func(c *cobra.Command) (*cache.Store, *config.Config, error) {
		cfg, err := loadConfig(configPath, func(cfg *config.Config) {
			if c.Flags().Changed("cache-path") {
				cfg.Cache.Path = cachePath
			}
		})
		if err != nil {
			return nil, nil, err
		}

		store, err := openStore(cfg, discardLogger())
		if err != nil {
			return nil, nil, err
		}

		return store, cfg, nil
	}

	cmd.AddCommand(newCacheRunsCommand(load), newCachePruneCommand(load))

	return cmd
}

type storeLoader func(cmd *cobra.Command) (*cache.Store, *config.Config, error)

func newCacheRunsCommand(load storeLoader) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List journaled batch runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := load(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs journaled.")

				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(out)
			tw.SetStyle(table.StyleLight)
			tw.AppendHeader(table.Row{"Run", "Root", "Started", "Files", "Analyzed", "Failed", "Status"})

			for _, run := range runs {
				status := "finished"
				if !run.Finished() {
					status = fmt.Sprintf("partial (%d/%d)", run.Recorded, run.TotalFiles)
				}

				tw.AppendRow(table.Row{
					run.ID, run.Root, humanize.Time(run.StartedAt),
					run.TotalFiles, run.AnalyzedFiles, run.FailedFiles, status,
				})
			}

			tw.Render()

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultRunsLimit, "Maximum runs to list (0 lists all)")

	return cmd
}

func newCachePruneCommand(load storeLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "prune [analyzer-binary]",
		Short: "Drop cached records produced by other analyzer builds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := load(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			binary := cfg.Analyzer.Binary
			if len(args) > 0 {
				binary = args[0]
			}

			analyzerID, err := cache.AnalyzerID(binary)
			if err != nil {
				return err
			}

			removed, err := store.Prune(cmd.Context(), analyzerID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s records from %s\n", humanize.Comma(removed), store.Path())

			return nil
		},
	}
}
