// Package batch runs the analyzer over a list of candidate files and
// accumulates the outcomes into a model.BatchResult.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/scopestat/pkg/adapter"
	"github.com/Sumatoshi-tech/scopestat/pkg/model"
	"github.com/Sumatoshi-tech/scopestat/pkg/observability"
)

const tracerName = "scopestat"

// kindUnknown labels failures that do not carry an analysis error kind.
const kindUnknown = "error"

var (
	// ErrNoAnalyzer is returned by New when Options.Analyzer is nil.
	ErrNoAnalyzer = errors.New("batch collector requires an analyzer")
	// ErrEmptyRecord is recorded when an analyzer returns neither a record nor an error.
	ErrEmptyRecord = errors.New("analyzer returned no record")
)

// Analyzer produces the record for one file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*model.SourceFileRecord, error)
}

// Progress receives one notification per completed file.
type Progress interface {
	Advance(current, total int)
}

// Journal persists outcomes as they happen. Journal errors are logged and
// never abort the batch.
type Journal interface {
	Record(ctx context.Context, outcome Outcome) error
}

// Outcome is the result of processing one candidate.
type Outcome struct {
	Record   *model.SourceFileRecord
	Err      error
	Path     string
	Index    int
	Duration time.Duration
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Kind returns the failure kind label, or an empty string for successes.
func (o Outcome) Kind() string {
	if o.Err == nil {
		return ""
	}

	if kind := adapter.KindOf(o.Err); kind != "" {
		return string(kind)
	}

	return kindUnknown
}

// Options configures a Collector.
type Options struct {
	Analyzer Analyzer
	Progress Progress
	Journal  Journal
	Logger   *slog.Logger
	// Tracer defaults to otel.Tracer("scopestat").
	Tracer  trace.Tracer
	Metrics *observability.BatchMetrics
	// Workers above 1 enables the worker pool.
	Workers int
	// TraceVerbose adds one span per file.
	TraceVerbose bool
}

// Collector drives a batch run.
type Collector struct {
	analyzer     Analyzer
	progress     Progress
	journal      Journal
	logger       *slog.Logger
	tracer       trace.Tracer
	metrics      *observability.BatchMetrics
	workers      int
	traceVerbose bool
}

// New creates a Collector.
func New(opts Options) (*Collector, error) {
	if opts.Analyzer == nil {
		return nil, ErrNoAnalyzer
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Collector{
		analyzer:     opts.Analyzer,
		progress:     opts.Progress,
		journal:      opts.Journal,
		logger:       logger,
		tracer:       tracer,
		metrics:      opts.Metrics,
		workers:      max(opts.Workers, 1),
		traceVerbose: opts.TraceVerbose,
	}, nil
}

// Run analyzes every path exactly once. Files not started before ctx is
// canceled are recorded as failed, and the batch is returned together with
// the context error.
func (c *Collector) Run(ctx context.Context, paths []string) (*model.BatchResult, error) {
	workers := min(c.workers, max(len(paths), 1))

	ctx, span := c.tracer.Start(ctx, "scopestat.batch.run",
		trace.WithAttributes(
			attribute.Int("batch.files", len(paths)),
			attribute.Int("batch.workers", workers),
		))
	defer span.End()

	result := model.NewBatchResult(len(paths))

	var canceled int

	if workers > 1 {
		canceled = c.runPool(ctx, paths, workers, result)
	} else {
		canceled = c.runSequential(ctx, paths, result)
	}

	span.SetAttributes(
		attribute.Int("batch.analyzed", result.AnalyzedFiles),
		attribute.Int("batch.failed", result.FailedFiles),
	)

	err := result.Validate()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return result, fmt.Errorf("collect batch: %w", err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		span.RecordError(ctxErr)
		span.SetStatus(codes.Error, "canceled")

		c.logger.WarnContext(ctx, "batch canceled",
			"analyzed", result.AnalyzedFiles,
			"failed", result.FailedFiles,
			"canceled", canceled)

		return result, ctxErr
	}

	return result, nil
}

func (c *Collector) runSequential(ctx context.Context, paths []string, result *model.BatchResult) int {
	var canceled int

	for idx, path := range paths {
		var outcome Outcome

		if ctx.Err() != nil {
			outcome = canceledOutcome(idx, path)
		} else {
			outcome = c.process(ctx, idx, path)
		}

		if outcome.canceled() {
			canceled++
		}

		c.observe(ctx, outcome, idx+1, len(paths))
		apply(result, outcome)
	}

	return canceled
}

// runPool fans indexes out to workers and merges the outcomes by index once
// every worker has finished, so the batch order matches runSequential.
func (c *Collector) runPool(ctx context.Context, paths []string, workers int, result *model.BatchResult) int {
	jobs := make(chan int)
	outcomes := make(chan Outcome)

	var wg sync.WaitGroup

	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()

			for idx := range jobs {
				outcomes <- c.process(ctx, idx, paths[idx])
			}
		}()
	}

	go func() {
		defer close(jobs)

		for idx := range paths {
			select {
			case jobs <- idx:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	merged := make([]Outcome, len(paths))
	seen := make([]bool, len(paths))
	done := 0
	canceled := 0

	// Workers handed a job after cancellation return canceled outcomes too.
	for outcome := range outcomes {
		merged[outcome.Index] = outcome
		seen[outcome.Index] = true
		done++

		if outcome.canceled() {
			canceled++
		}

		c.observe(ctx, outcome, done, len(paths))
	}

	for idx, path := range paths {
		if seen[idx] {
			continue
		}

		outcome := canceledOutcome(idx, path)
		merged[idx] = outcome
		done++
		canceled++

		c.observe(ctx, outcome, done, len(paths))
	}

	for _, outcome := range merged {
		apply(result, outcome)
	}

	return canceled
}

func (c *Collector) process(ctx context.Context, idx int, path string) Outcome {
	if ctx.Err() != nil {
		return canceledOutcome(idx, path)
	}

	if c.traceVerbose {
		var span trace.Span

		ctx, span = c.tracer.Start(ctx, "scopestat.file",
			trace.WithAttributes(
				attribute.String("file.path", path),
				attribute.Int("file.index", idx),
			))
		defer span.End()

		outcome := c.invoke(ctx, idx, path)
		if outcome.Err != nil {
			span.RecordError(outcome.Err)
			span.SetStatus(codes.Error, outcome.Kind())
		}

		return outcome
	}

	return c.invoke(ctx, idx, path)
}

func (c *Collector) invoke(ctx context.Context, idx int, path string) Outcome {
	start := time.Now()

	record, err := c.analyzer.Analyze(ctx, path)
	if err == nil && record == nil {
		err = ErrEmptyRecord
	}

	outcome := Outcome{Path: path, Index: idx, Duration: time.Since(start)}

	if err != nil {
		outcome.Err = err

		return outcome
	}

	record.Normalize(path)
	outcome.Record = record

	return outcome
}

func (c *Collector) observe(ctx context.Context, outcome Outcome, current, total int) {
	kind := outcome.Kind()

	c.metrics.RecordFile(ctx, kind, outcome.Duration)

	switch {
	case outcome.Err == nil:
		c.logger.DebugContext(ctx, "file analyzed", "path", outcome.Path, "duration", outcome.Duration)
	case kind != string(adapter.KindCanceled):
		c.logger.WarnContext(ctx, "file analysis failed", "path", outcome.Path, "kind", kind, "error", outcome.Err)
	}

	if c.journal != nil {
		err := c.journal.Record(ctx, outcome)
		if err != nil {
			c.logger.WarnContext(ctx, "journal record failed", "path", outcome.Path, "error", err)
		}
	}

	if c.progress != nil {
		c.progress.Advance(current, total)
	}
}

func apply(result *model.BatchResult, outcome Outcome) {
	if outcome.Err != nil {
		result.Fail(outcome.Path, outcome.Err.Error())

		return
	}

	result.Append(outcome.Record)
}

func (o Outcome) canceled() bool {
	return o.Kind() == string(adapter.KindCanceled)
}

func canceledOutcome(idx int, path string) Outcome {
	return Outcome{
		Path:  path,
		Index: idx,
		Err: &adapter.AnalysisError{
			Err:     adapter.ErrCanceled,
			Path:    path,
			Kind:    adapter.KindCanceled,
			Message: adapter.ErrCanceled.Error(),
		},
	}
}
