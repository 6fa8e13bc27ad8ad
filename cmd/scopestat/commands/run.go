package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scopestat/pkg/adapter"
	"github.com/Sumatoshi-tech/scopestat/pkg/config"
	"github.com/Sumatoshi-tech/scopestat/pkg/observability"
	"github.com/Sumatoshi-tech/scopestat/pkg/pipeline"
	"github.com/Sumatoshi-tech/scopestat/pkg/report"
	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
	"github.com/Sumatoshi-tech/scopestat/pkg/terminal"
)

// progressBarWidth is the bar width of the progress line.
const progressBarWidth = 30

// RunCommand holds configuration and dependencies for the run command.
type RunCommand struct {
	configPath string
	outDir     string
	formats    []string
	variant    string
	workers    int
	timeout    time.Duration
	maxOutput  string
	cache      bool
	cachePath  string
	compress   bool
	silent     bool
	noColor    bool
	logLevel   string
	logJSON    bool

	// analyzer replaces the external analyzer process when set.
	analyzer adapter.Func
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return newRunCommandWithDeps(nil)
}

func newRunCommandWithDeps(analyzer adapter.Func) *cobra.Command {
	rc := &RunCommand{analyzer: analyzer}

	cobraCommand := &cobra.Command{
		Use:   "run <target-dir> [analyzer-binary]",
		Short: "Analyze every source file under a directory and aggregate the results",
		Long: `Run the external analyzer as "<analyzer-binary> view <file> --format json"
for every eligible source file under target-dir, then write the batch result
and statistics in the selected formats.

Output formats (--format, comma-separated):
  json   analysis-results.json (default)
  csv    analysis-files.csv, analysis-symbols.csv[, analysis-metrics.csv] (default)
  stats  analysis-stats.json
  yaml   analysis-stats.yaml
  plot   analysis-report.html
  md     analysis-summary.md

Examples:
  scopestat run ./src
  scopestat run ./src ./bin/analyzer --workers 4 --format json,csv,plot
  scopestat run ./src --cache --out-dir reports`,
		Args: cobra.RangeArgs(1, 2),
		RunE: rc.run,
	}

	flags := cobraCommand.Flags()
	flags.StringVar(&rc.configPath, flagConfig, "", "Path to a config file (default .scopestat.yaml in . or $HOME)")
	flags.StringVarP(&rc.outDir, "out-dir", "o", config.DefaultOutputDir, "Directory receiving the report files")
	flags.StringSliceVarP(&rc.formats, "format", "f", config.DefaultFormats, "Output formats: json, csv, stats, yaml, plot, md")
	flags.StringVar(&rc.variant, flagVariant, config.DefaultVariant, "Metric variant: auto, complexity, quality")
	flags.IntVarP(&rc.workers, "workers", "w", config.DefaultWorkers, "Number of concurrent analyzer processes")
	flags.DurationVar(&rc.timeout, "timeout", config.DefaultAnalyzerTimeout, "Per-file analyzer timeout (0 disables)")
	flags.StringVar(&rc.maxOutput, "max-output", config.DefaultMaxOutput, "Maximum analyzer output per file (e.g. 10MiB)")
	flags.BoolVar(&rc.cache, "cache", config.DefaultCacheEnabled, "Reuse records of unchanged files and journal the run")
	flags.StringVar(&rc.cachePath, "cache-path", config.DefaultCachePath, "Cache database path")
	flags.BoolVar(&rc.compress, "compress", false, "Also write a zstd-compressed copy of the batch result")
	flags.BoolVar(&rc.silent, "silent", false, "Suppress progress and the console summary")
	flags.BoolVar(&rc.noColor, flagNoColor, false, "Disable colored output")
	flags.StringVar(&rc.logLevel, flagLogLevel, config.DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.BoolVar(&rc.logJSON, flagLogJSON, false, "Write logs as JSON")

	return cobraCommand
}

// applyFlags copies explicitly set flags and the optional analyzer argument onto cfg.
func (rc *RunCommand) applyFlags(cmd *cobra.Command, args []string, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("out-dir") {
		cfg.Output.Dir = rc.outDir
	}

	if changed("format") {
		cfg.Output.Formats = rc.formats
	}

	if changed(flagVariant) {
		cfg.Stats.Variant = rc.variant
	}

	if changed("workers") {
		cfg.Batch.Workers = rc.workers
	}

	if changed("timeout") {
		cfg.Analyzer.Timeout = rc.timeout
	}

	if changed("max-output") {
		cfg.Analyzer.MaxOutput = rc.maxOutput
	}

	if changed("cache") {
		cfg.Cache.Enabled = rc.cache
	}

	if changed("cache-path") {
		cfg.Cache.Path = rc.cachePath
	}

	if changed("compress") {
		cfg.Output.Compress = rc.compress
	}

	if changed("silent") {
		cfg.Output.Silent = rc.silent
	}

	if changed(flagNoColor) {
		cfg.Output.NoColor = rc.noColor
	}

	applyLogging(cmd, cfg, rc.logLevel, rc.logJSON)

	if len(args) > 1 {
		cfg.Analyzer.Binary = args[1]
	}
}

func (rc *RunCommand) run(cmd *cobra.Command, args []string) error {
	target := args[0]

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("target directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrTargetNotDirectory, target)
	}

	cfg, err := loadConfig(rc.configPath, func(cfg *config.Config) { rc.applyFlags(cmd, args, cfg) })
	if err != nil {
		return err
	}

	providers, err := observability.Init(observabilityConfig(cfg, observability.ModeCLI))
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer shutdownObservability(providers)

	logger := providers.Logger

	metrics, err := observability.NewBatchMetrics(providers.Meter)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Config:   cfg,
		Logger:   logger,
		Tracer:   providers.Tracer,
		Metrics:  metrics,
		Analyzer: rc.analyzer,
	}

	if cfg.Cache.Enabled {
		store, openErr := openStore(cfg, logger)
		if openErr != nil {
			return openErr
		}
		defer store.Close()

		opts.Store = store
	}

	return execute(cmd.Context(), target, cfg, opts, cmd.OutOrStdout())
}

func execute(ctx context.Context, target string, cfg *config.Config, opts pipeline.Options, out io.Writer) error {
	logger := opts.Logger

	var progress *terminal.ProgressLine

	if !cfg.Output.Silent {
		progress = terminal.NewProgressLine(out, progressBarWidth)
		opts.Progress = progress
	}

	outcome, runErr := pipeline.Run(ctx, target, opts)

	if progress != nil {
		progress.Finish()
	}

	if outcome == nil {
		return fmt.Errorf("run batch: %w", runErr)
	}

	formats, err := report.ParseFormats(cfg.Output.Formats)
	if err != nil {
		return err
	}

	variant, err := stats.ParseVariant(cfg.Stats.Variant)
	if err != nil {
		return err
	}

	written, err := report.NewExporter(report.Options{
		Logger:   logger,
		Dir:      cfg.Output.Dir,
		Formats:  formats,
		Variant:  variant,
		Compress: cfg.Output.Compress,
	}).Export(outcome.Result, outcome.Stats)
	if err != nil {
		return fmt.Errorf("export reports: %w", err)
	}

	if !cfg.Output.Silent {
		err = report.WriteSummary(out, outcome.Result, outcome.Stats, report.SummaryOptions{
			Terminal:  terminalConfig(cfg.Output.NoColor),
			Threshold: cfg.Stats.ComplexityThreshold,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(out, "\nReports:")

		for _, path := range written {
			fmt.Fprintf(out, "  %s\n", path)
		}
	}

	logger.InfoContext(ctx, "reports written", "dir", cfg.Output.Dir, "files", len(written))

	if outcome.RunID != "" {
		logger.InfoContext(ctx, "run journaled",
			"run_id", outcome.RunID,
			"cache_hits", humanize.Comma(outcome.Cache.Hits),
			"cache_lookups", humanize.Comma(outcome.Cache.Lookups()),
			"cache_hit_rate", fmt.Sprintf("%.0f%%", outcome.Cache.HitRate()*100),
		)
	}

	if runErr != nil {
		return fmt.Errorf("batch interrupted, partial reports written: %w", runErr)
	}

	return nil
}
