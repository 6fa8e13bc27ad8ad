package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFilesTotal       = "scopestat.batch.files.total"
	metricFileDuration     = "scopestat.batch.file.duration.seconds"
	metricCacheHitsTotal   = "scopestat.batch.cache.hits.total"
	metricCacheMissesTotal = "scopestat.batch.cache.misses.total"

	attrKind = "kind"
)

// BatchMetrics holds OTel instruments for batch collection.
type BatchMetrics struct {
	filesTotal   metric.Int64Counter
	fileDuration metric.Float64Histogram
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
}

// NewBatchMetrics creates batch metric instruments from the given meter.
func NewBatchMetrics(mt metric.Meter) (*BatchMetrics, error) {
	files, err := mt.Int64Counter(metricFilesTotal,
		metric.WithDescription("Files processed by outcome"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFilesTotal, err)
	}

	fileDur, err := mt.Float64Histogram(metricFileDuration,
		metric.WithDescription("Per-file analyzer duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFileDuration, err)
	}

	hits, err := mt.Int64Counter(metricCacheHitsTotal,
		metric.WithDescription("Result cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheHitsTotal, err)
	}

	misses, err := mt.Int64Counter(metricCacheMissesTotal,
		metric.WithDescription("Result cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheMissesTotal, err)
	}

	return &BatchMetrics{
		filesTotal:   files,
		fileDuration: fileDur,
		cacheHits:    hits,
		cacheMisses:  misses,
	}, nil
}

// RecordFile records one file outcome. kind is empty for successes and the
// failure kind otherwise. Safe to call on a nil receiver (no-op).
func (bm *BatchMetrics) RecordFile(ctx context.Context, kind string, duration time.Duration) {
	if bm == nil {
		return
	}

	status := StatusOK
	if kind != "" {
		status = StatusError
	}

	attrs := []attribute.KeyValue{attribute.String(attrStatus, status)}
	if kind != "" {
		attrs = append(attrs, attribute.String(attrKind, kind))
	}

	bm.filesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	bm.fileDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordCache records result cache totals for a completed run.
// Safe to call on a nil receiver (no-op).
func (bm *BatchMetrics) RecordCache(ctx context.Context, hits, misses int64) {
	if bm == nil {
		return
	}

	bm.cacheHits.Add(ctx, hits)
	bm.cacheMisses.Add(ctx, misses)
}
