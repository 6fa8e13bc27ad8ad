package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scopestat/pkg/config"
	"github.com/Sumatoshi-tech/scopestat/pkg/model"
	"github.com/Sumatoshi-tech/scopestat/pkg/persist"
	"github.com/Sumatoshi-tech/scopestat/pkg/report"
	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
)

// Output formats of the stats command.
const (
	statsFormatConsole  = "console"
	statsFormatJSON     = "json"
	statsFormatYAML     = "yaml"
	statsFormatMarkdown = "md"
)

// ErrUnknownStatsFormat is returned for an unsupported stats --format value.
var ErrUnknownStatsFormat = errors.New("unknown stats format")

// NewStatsCommand creates the stats command.
func NewStatsCommand() *cobra.Command {
	var (
		configPath string
		format     string
		variant    string
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "stats <analysis-results.json>",
		Short: "Recompute and print statistics from a saved batch result",
		Long: `Recompute statistics from an analysis-results.json (or .json.zst) file
written by "scopestat run" and print them.

Formats: console (default), json, yaml, md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, func(cfg *config.Config) {
				if cmd.Flags().Changed(flagVariant) {
					cfg.Stats.Variant = variant
				}

				if cmd.Flags().Changed(flagNoColor) {
					cfg.Output.NoColor = noColor
				}
			})
			if err != nil {
				return err
			}

			batch, err := loadBatchFile(args[0])
			if err != nil {
				return err
			}

			opts, err := cfg.StatsOptions()
			if err != nil {
				return err
			}

			st, err := stats.Compute(batch.Results, opts)
			if err != nil && (!errors.Is(err, stats.ErrNoData) || format != statsFormatConsole) {
				return fmt.Errorf("compute statistics: %w", err)
			}

			return writeStats(cmd.OutOrStdout(), format, batch, st, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, flagConfig, "", "Path to a config file")
	cmd.Flags().StringVarP(&format, "format", "f", statsFormatConsole, "Output format: console, json, yaml, md")
	cmd.Flags().StringVar(&variant, flagVariant, config.DefaultVariant, "Metric variant: auto, complexity, quality")
	cmd.Flags().BoolVar(&noColor, flagNoColor, false, "Disable colored output")

	return cmd
}

func writeStats(out io.Writer, format string, batch *model.BatchResult, st *stats.Statistics, cfg *config.Config) error {
	switch strings.ToLower(format) {
	case statsFormatConsole:
		return report.WriteSummary(out, batch, st, report.SummaryOptions{
			Terminal:  terminalConfig(cfg.Output.NoColor),
			Threshold: cfg.Stats.ComplexityThreshold,
		})
	case statsFormatJSON:
		return persist.NewJSONCodec().Encode(out, st)
	case statsFormatYAML:
		return persist.NewYAMLCodec().Encode(out, st)
	case statsFormatMarkdown:
		return report.WriteMarkdown(out, batch, st)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStatsFormat, format)
	}
}

// loadBatchFile reads a batch result, decompressing .zst files.
func loadBatchFile(path string) (*model.BatchResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".zst") {
		return model.LoadBatch(f)
	}

	var batch model.BatchResult

	err = persist.NewZstdCodec(persist.NewJSONCodec()).Decode(f, &batch)
	if err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}

	if batch.Errors == nil {
		batch.Errors = []model.FileError{}
	}

	return &batch, nil
}
