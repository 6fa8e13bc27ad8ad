package batch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/scopestat/pkg/adapter"
	"github.com/Sumatoshi-tech/scopestat/pkg/batch"
	"github.com/Sumatoshi-tech/scopestat/pkg/model"
	"github.com/Sumatoshi-tech/scopestat/pkg/observability"
)

var errBoom = errors.New("boom")

func loc(path string) int {
	return len(path) * 10
}

// fakeAnalyzer fails for paths in fail and returns a record sized by the path otherwise.
func fakeAnalyzer(fail map[string]bool) adapter.Func {
	return func(_ context.Context, path string) (*model.SourceFileRecord, error) {
		if fail[path] {
			return nil, &adapter.AnalysisError{Err: adapter.ErrAnalyzerExit, Path: path, Kind: adapter.KindExit, Message: "exit status 1"}
		}

		return &model.SourceFileRecord{LOC: loc(path)}, nil
	}
}

type progressRecorder struct {
	mu      sync.Mutex
	current []int
	total   []int
}

func (p *progressRecorder) Advance(current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = append(p.current, current)
	p.total = append(p.total, total)
}

type journalRecorder struct {
	err      error
	mu       sync.Mutex
	outcomes []batch.Outcome
}

func (j *journalRecorder) Record(_ context.Context, outcome batch.Outcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.outcomes = append(j.outcomes, outcome)

	return j.err
}

func paths(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("src/f%02d.ts", i)
	}

	return out
}

func TestNew_RequiresAnalyzer(t *testing.T) {
	t.Parallel()

	_, err := batch.New(batch.Options{})
	require.ErrorIs(t, err, batch.ErrNoAnalyzer)
}

func TestRun_SequentialRecordsFailuresAndContinues(t *testing.T) {
	t.Parallel()

	collector, err := batch.New(batch.Options{
		Analyzer: fakeAnalyzer(map[string]bool{"b.ts": true}),
	})
	require.NoError(t, err)

	result, err := collector.Run(context.Background(), []string{"a.ts", "b.ts", "cc.ts"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalFiles)
	assert.Equal(t, 2, result.AnalyzedFiles)
	assert.Equal(t, 1, result.FailedFiles)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "a.ts", result.Results[0].Path)
	assert.Equal(t, "cc.ts", result.Results[1].Path)
	assert.Equal(t, []model.FileError{{Path: "b.ts", Error: "exit status 1"}}, result.Errors)
	require.NoError(t, result.Validate())
}

func TestRun_FillsPathAndEmptyCollections(t *testing.T) {
	t.Parallel()

	collector, err := batch.New(batch.Options{Analyzer: fakeAnalyzer(nil)})
	require.NoError(t, err)

	result, err := collector.Run(context.Background(), []string{"x.ts"})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)

	record := result.Results[0]
	assert.Equal(t, "x.ts", record.Path)
	assert.NotNil(t, record.Symbols)
	assert.NotNil(t, record.Outgoing)
}

func TestRun_EmptyRecordIsFailure(t *testing.T) {
	t.Parallel()

	empty := adapter.Func(func(context.Context, string) (*model.SourceFileRecord, error) {
		return nil, nil //nolint:nilnil // exercising a misbehaving analyzer.
	})

	collector, err := batch.New(batch.Options{Analyzer: empty})
	require.NoError(t, err)

	result, err := collector.Run(context.Background(), []string{"x.ts"})
	require.NoError(t, err)
	assert.Equal(t, []model.FileError{{Path: "x.ts", Error: batch.ErrEmptyRecord.Error()}}, result.Errors)
}

func TestRun_EmptyInput(t *testing.T) {
	t.Parallel()

	collector, err := batch.New(batch.Options{Analyzer: fakeAnalyzer(nil), Workers: 4})
	require.NoError(t, err)

	result, err := collector.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalFiles)
	assert.Empty(t, result.Results)
	assert.Empty(t, result.Errors)
}

func TestRun_PoolMatchesSequential(t *testing.T) {
	t.Parallel()

	input := paths(25)
	fail := map[string]bool{input[3]: true, input[17]: true}

	jittered := adapter.Func(func(ctx context.Context, path string) (*model.SourceFileRecord, error) {
		time.Sleep(time.Duration(len(path)%3) * time.Millisecond)

		return fakeAnalyzer(fail)(ctx, path)
	})

	sequential, err := batch.New(batch.Options{Analyzer: jittered})
	require.NoError(t, err)

	pooled, err := batch.New(batch.Options{Analyzer: jittered, Workers: 6})
	require.NoError(t, err)

	want, err := sequential.Run(context.Background(), input)
	require.NoError(t, err)

	got, err := pooled.Run(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, 23, got.AnalyzedFiles)
	assert.Equal(t, 2, got.FailedFiles)
}

func TestRun_ProgressAndJournal(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()

			progress := &progressRecorder{}
			journal := &journalRecorder{err: errBoom}

			collector, err := batch.New(batch.Options{
				Analyzer: fakeAnalyzer(map[string]bool{"src/f01.ts": true}),
				Progress: progress,
				Journal:  journal,
				Workers:  workers,
			})
			require.NoError(t, err)

			result, err := collector.Run(context.Background(), paths(4))
			require.NoError(t, err, "journal errors never abort the batch")
			assert.Equal(t, 3, result.AnalyzedFiles)

			assert.Equal(t, []int{1, 2, 3, 4}, progress.current)
			assert.Equal(t, []int{4, 4, 4, 4}, progress.total)

			require.Len(t, journal.outcomes, 4)

			failed := 0

			for _, outcome := range journal.outcomes {
				if outcome.Failed() {
					failed++

					assert.Equal(t, "src/f01.ts", outcome.Path)
					assert.Equal(t, 1, outcome.Index)
					assert.Equal(t, "exit", outcome.Kind())
				}
			}

			assert.Equal(t, 1, failed)
		})
	}
}

func TestRun_CancelMidBatchRecordsRemaining(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32

	analyzer := adapter.Func(func(ctx context.Context, path string) (*model.SourceFileRecord, error) {
		if calls.Add(1) == 2 {
			cancel()
		}

		return fakeAnalyzer(nil)(ctx, path)
	})

	collector, err := batch.New(batch.Options{Analyzer: analyzer})
	require.NoError(t, err)

	result, err := collector.Run(ctx, paths(5))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 5, result.TotalFiles)
	assert.Equal(t, 2, result.AnalyzedFiles, "the in-flight file completes")
	assert.Equal(t, 3, result.FailedFiles)

	for _, fileErr := range result.Errors {
		assert.Equal(t, "analysis canceled", fileErr.Error)
	}

	assert.Equal(t, "src/f02.ts", result.Errors[0].Path)
	require.NoError(t, result.Validate())
}

func TestRun_PoolCanceledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32

	analyzer := adapter.Func(func(ctx context.Context, path string) (*model.SourceFileRecord, error) {
		calls.Add(1)

		return fakeAnalyzer(nil)(ctx, path)
	})

	progress := &progressRecorder{}

	collector, err := batch.New(batch.Options{Analyzer: analyzer, Workers: 4, Progress: progress})
	require.NoError(t, err)

	input := paths(6)

	result, err := collector.Run(ctx, input)
	require.ErrorIs(t, err, context.Canceled)

	assert.Zero(t, calls.Load())
	assert.Equal(t, 6, result.FailedFiles)
	assert.Len(t, progress.current, 6)

	for idx, fileErr := range result.Errors {
		assert.Equal(t, input[idx], fileErr.Path)
	}

	require.NoError(t, result.Validate())
}

func TestRun_PoolCanceledWarningCountsEveryCanceledFile(t *testing.T) {
	t.Parallel()

	// Repeat so some jobs reach a worker after cancellation and some are never dispatched.
	for range 20 {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var logs bytes.Buffer

		collector, err := batch.New(batch.Options{
			Analyzer: fakeAnalyzer(nil),
			Workers:  4,
			Logger:   slog.New(slog.NewJSONHandler(&logs, nil)),
		})
		require.NoError(t, err)

		_, err = collector.Run(ctx, paths(8))
		require.ErrorIs(t, err, context.Canceled)

		var warning struct {
			Msg      string `json:"msg"`
			Canceled int    `json:"canceled"`
		}

		found := false

		for line := range bytes.Lines(logs.Bytes()) {
			require.NoError(t, json.Unmarshal(line, &warning))

			if warning.Msg == "batch canceled" {
				found = true

				break
			}
		}

		require.True(t, found, "batch canceled warning not logged")
		assert.Equal(t, 8, warning.Canceled)
	}
}

func TestRun_Spans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	collector, err := batch.New(batch.Options{
		Analyzer:     fakeAnalyzer(map[string]bool{"b.ts": true}),
		Tracer:       tp.Tracer("scopestat"),
		TraceVerbose: true,
	})
	require.NoError(t, err)

	_, err = collector.Run(context.Background(), []string{"a.ts", "b.ts"})
	require.NoError(t, err)

	spansByName := make(map[string][]tracetest.SpanStub)
	for _, s := range exporter.GetSpans() {
		spansByName[s.Name] = append(spansByName[s.Name], s)
	}

	require.Len(t, spansByName["scopestat.batch.run"], 1)
	require.Len(t, spansByName["scopestat.file"], 2)

	root := spansByName["scopestat.batch.run"][0]
	for _, fileSpan := range spansByName["scopestat.file"] {
		assert.Equal(t, root.SpanContext.SpanID(), fileSpan.Parent.SpanID())
	}
}

func TestRun_SpansQuietByDefault(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	collector, err := batch.New(batch.Options{Analyzer: fakeAnalyzer(nil), Tracer: tp.Tracer("scopestat")})
	require.NoError(t, err)

	_, err = collector.Run(context.Background(), paths(3))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "scopestat.batch.run", spans[0].Name)
}

func TestRun_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewBatchMetrics(mp.Meter("test"))
	require.NoError(t, err)

	collector, err := batch.New(batch.Options{
		Analyzer: fakeAnalyzer(map[string]bool{"src/f00.ts": true}),
		Metrics:  metrics,
		Workers:  2,
	})
	require.NoError(t, err)

	_, err = collector.Run(context.Background(), paths(3))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "scopestat.batch.files.total" {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)

			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}

	assert.Equal(t, int64(3), total)
}

func TestOutcome_Kind(t *testing.T) {
	t.Parallel()

	assert.Empty(t, batch.Outcome{}.Kind())
	assert.Equal(t, "error", batch.Outcome{Err: errBoom}.Kind())
	assert.Equal(t, "timeout", batch.Outcome{Err: &adapter.AnalysisError{Kind: adapter.KindTimeout}}.Kind())
}
