package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricToolCallsTotal  = "scopestat.tool.calls.total"
	metricToolDuration    = "scopestat.tool.duration.seconds"
	metricToolFilesTotal  = "scopestat.tool.files.total"
	metricToolActiveCalls = "scopestat.tool.active.calls"

	attrTool    = "tool"
	attrVariant = "variant"
	attrOutcome = "outcome"
	attrStatus  = "status"

	// StatusOK marks a successful tool call or file.
	StatusOK = "ok"
	// StatusError marks a failed tool call or file.
	StatusError = "error"

	outcomeAnalyzed = "analyzed"
	outcomeFailed   = "failed"
)

// durationBucketBoundaries covers 10ms to 600s: single-file analyzer calls up
// to whole-tree batches served over MCP.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// ToolCall describes one finished MCP tool invocation.
type ToolCall struct {
	Tool     string
	Variant  string
	Duration time.Duration
	Failed   bool

	// AnalyzedFiles and FailedFiles are the batch totals the call reported.
	AnalyzedFiles int
	FailedFiles   int
}

// ToolMetrics holds the OTel instruments recorded around MCP tool calls.
type ToolMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	files    metric.Int64Counter
	active   metric.Int64UpDownCounter
}

// NewToolMetrics creates tool instruments from the given meter.
func NewToolMetrics(mt metric.Meter) (*ToolMetrics, error) {
	calls, err := mt.Int64Counter(metricToolCallsTotal,
		metric.WithDescription("MCP tool calls by tool, variant and status"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolCallsTotal, err)
	}

	duration, err := mt.Float64Histogram(metricToolDuration,
		metric.WithDescription("MCP tool call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolDuration, err)
	}

	files, err := mt.Int64Counter(metricToolFilesTotal,
		metric.WithDescription("Files reported by MCP tool calls, analyzed or failed"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolFilesTotal, err)
	}

	active, err := mt.Int64UpDownCounter(metricToolActiveCalls,
		metric.WithDescription("MCP tool calls in progress"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolActiveCalls, err)
	}

	return &ToolMetrics{calls: calls, duration: duration, files: files, active: active}, nil
}

// Begin marks a call to tool as active and returns the function ending it.
// Safe to call on a nil receiver (no-op).
func (tm *ToolMetrics) Begin(ctx context.Context, tool string) func() {
	if tm == nil {
		return func() {}
	}

	attrs := metric.WithAttributes(attribute.String(attrTool, tool))
	tm.active.Add(ctx, 1, attrs)

	return func() { tm.active.Add(ctx, -1, attrs) }
}

// Record records a finished call. File counts are only added when non-zero.
// Safe to call on a nil receiver (no-op).
func (tm *ToolMetrics) Record(ctx context.Context, call ToolCall) {
	if tm == nil {
		return
	}

	status := StatusOK
	if call.Failed {
		status = StatusError
	}

	tool := attribute.String(attrTool, call.Tool)
	variant := attribute.String(attrVariant, call.Variant)

	tm.calls.Add(ctx, 1, metric.WithAttributes(tool, variant, attribute.String(attrStatus, status)))
	tm.duration.Record(ctx, call.Duration.Seconds(), metric.WithAttributes(tool))

	for outcome, count := range map[string]int{outcomeAnalyzed: call.AnalyzedFiles, outcomeFailed: call.FailedFiles} {
		if count > 0 {
			tm.files.Add(ctx, int64(count), metric.WithAttributes(tool, variant, attribute.String(attrOutcome, outcome)))
		}
	}
}
