// Package pipeline wires discovery, the analyzer adapter, the optional result
// cache and run journal, the batch collector and the statistics engine into a
// single run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/scopestat/pkg/adapter"
	"github.com/Sumatoshi-tech/scopestat/pkg/batch"
	"github.com/Sumatoshi-tech/scopestat/pkg/cache"
	"github.com/Sumatoshi-tech/scopestat/pkg/config"
	"github.com/Sumatoshi-tech/scopestat/pkg/discover"
	"github.com/Sumatoshi-tech/scopestat/pkg/model"
	"github.com/Sumatoshi-tech/scopestat/pkg/observability"
	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
)

// Options configures Run.
type Options struct {
	// Config supplies discovery, analyzer, batch and stats settings. Nil uses config.Default.
	Config   *config.Config
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Metrics  *observability.BatchMetrics
	Progress batch.Progress
	// Store enables the result cache and the run journal.
	Store *cache.Store
	// Analyzer replaces the external analyzer process.
	Analyzer adapter.Func
	// Base is the directory candidate paths are relative to and the analyzer
	// runs in. Empty means the working directory.
	Base string
}

// Outcome is the product of one run.
type Outcome struct {
	Result *model.BatchResult
	// Stats is nil when no file was analyzed.
	Stats           *stats.Statistics
	RunID           string
	Cache           cache.Stats
	DiscoveryErrors int
}

// Run discovers the files under root, analyzes them and computes statistics.
// On cancellation the partial outcome is returned together with the context
// error.
func Run(ctx context.Context, root string, opts Options) (*Outcome, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	out := &Outcome{}

	disc, err := discover.New(discover.Options{
		OnError: func(de *discover.DiscoveryError) {
			out.DiscoveryErrors++

			logger.WarnContext(ctx, "directory skipped", "dir", de.Dir, "error", de.Err)
		},
		Base:                opts.Base,
		ExcludeDirs:         cfg.Discovery.ExcludeDirs,
		ExcludeGlobs:        cfg.Discovery.ExcludeGlobs,
		SourceExtensions:    cfg.Discovery.Extensions,
		DeclarationSuffixes: cfg.Discovery.DeclarationSuffixes,
		RespectGitignore:    cfg.Discovery.RespectGitignore,
		SkipVendor:          cfg.Discovery.SkipVendor,
	})
	if err != nil {
		return nil, fmt.Errorf("configure discovery: %w", err)
	}

	candidates, err := disc.Discover(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}

	logger.InfoContext(ctx, "files discovered", "root", root, "files", len(candidates))

	analyze, err := buildAnalyzer(cfg, opts, logger)
	if err != nil {
		return nil, err
	}

	var journal batch.Journal

	var run *cache.Run

	if opts.Store != nil {
		run, err = opts.Store.BeginRun(ctx, absPath(root), len(candidates))
		if err != nil {
			logger.WarnContext(ctx, "run journal disabled", "error", err)
		} else {
			journal = run
			out.RunID = run.ID()
			ctx = observability.WithRunID(ctx, run.ID())
		}
	}

	collector, err := batch.New(batch.Options{
		Analyzer:     withLanguages(analyze, candidates),
		Progress:     opts.Progress,
		Journal:      journal,
		Logger:       logger,
		Tracer:       opts.Tracer,
		Metrics:      opts.Metrics,
		Workers:      cfg.Batch.Workers,
		TraceVerbose: cfg.Telemetry.TraceVerbose,
	})
	if err != nil {
		return nil, fmt.Errorf("configure batch: %w", err)
	}

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.Path
	}

	result, runErr := collector.Run(ctx, paths)
	if result == nil {
		return nil, runErr
	}

	out.Result = result

	if run != nil {
		finishErr := run.Finish(ctx, result)
		if finishErr != nil {
			logger.WarnContext(ctx, "run journal not finished", "error", finishErr)
		}
	}

	if opts.Store != nil {
		out.Cache = opts.Store.Stats()
		opts.Metrics.RecordCache(ctx, out.Cache.Hits, out.Cache.Misses)
	}

	statsOpts, err := cfg.StatsOptions()
	if err != nil {
		return out, err
	}

	st, err := stats.Compute(result.Results, statsOpts)

	switch {
	case errors.Is(err, stats.ErrNoData):
		logger.WarnContext(ctx, "no files analyzed, statistics skipped",
			"total", result.TotalFiles, "failed", result.FailedFiles)
	case err != nil:
		return out, fmt.Errorf("compute statistics: %w", err)
	default:
		out.Stats = st
	}

	logger.InfoContext(ctx, "batch complete",
		"total", result.TotalFiles, "analyzed", result.AnalyzedFiles, "failed", result.FailedFiles)

	return out, runErr
}

func buildAnalyzer(cfg *config.Config, opts Options, logger *slog.Logger) (adapter.Func, error) {
	analyze := opts.Analyzer

	if analyze == nil {
		maxOutput, err := cfg.MaxOutputBytes()
		if err != nil {
			return nil, err
		}

		runner, err := adapter.NewRunner(adapter.Options{
			Logger:         logger,
			Binary:         cfg.Analyzer.Binary,
			Dir:            opts.Base,
			MaxOutputBytes: maxOutput,
			Timeout:        cfg.Analyzer.Timeout,
			ValidateSchema: cfg.Analyzer.ValidateSchema,
		})
		if err != nil {
			return nil, fmt.Errorf("configure analyzer: %w", err)
		}

		analyze = runner.Analyze
	}

	if opts.Store == nil {
		return analyze, nil
	}

	analyzerID, err := cache.AnalyzerID(ResolveBinary(cfg.Analyzer.Binary, opts.Base))
	if err != nil {
		logger.Warn("result cache disabled", "binary", cfg.Analyzer.Binary, "error", err)

		return analyze, nil
	}

	return opts.Store.Wrap(analyzerID, opts.Base, analyze), nil
}

// withLanguages fills a missing record language from the discovery tag.
func withLanguages(next adapter.Func, candidates []discover.Candidate) adapter.Func {
	languages := make(map[string]string, len(candidates))
	for _, c := range candidates {
		languages[c.Path] = c.Language
	}

	return func(ctx context.Context, path string) (*model.SourceFileRecord, error) {
		record, err := next(ctx, path)
		if err != nil || record == nil {
			return record, err
		}

		if record.Language == "" {
			record.Language = languages[path]
		}

		return record, nil
	}
}

// ResolveBinary returns the analyzer path as the child process sees it: a
// relative path with a directory component is resolved against base.
func ResolveBinary(binary, base string) string {
	if base == "" || filepath.IsAbs(binary) || !strings.ContainsRune(binary, filepath.Separator) {
		return binary
	}

	return filepath.Join(base, binary)
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	return abs
}
