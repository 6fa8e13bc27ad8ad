// Package stats aggregates analyzer records into cross-project statistics:
// averages, bucketed distributions, top-N rankings and group-by rollups.
// All functions are pure and never mutate their inputs.
package stats

import (
	"cmp"
	"math"
	"slices"
)

// Well-known percentile thresholds.
const (
	PercentileMedian = 0.5
	PercentileP95    = 0.95
)

// Percentile returns the p-th percentile of values using linear interpolation.
// p must be in [0, 1]. The input slice is not modified (a copy is sorted internally).
// Returns 0 for an empty slice.
func Percentile(values []float64, p float64) float64 {
	count := len(values)
	if count == 0 {
		return 0
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	idx := Clamp(p, 0, 1) * float64(count-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))

	if lower == upper || upper >= count {
		return sorted[lower]
	}

	frac := idx - float64(lower)

	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// Median returns the 50th percentile of values.
// Returns 0 for an empty slice.
func Median(values []float64) float64 {
	return Percentile(values, PercentileMedian)
}

// Clamp restricts val to the range [lo, hi].
func Clamp[T cmp.Ordered](val, lo, hi T) T {
	return max(lo, min(val, hi))
}
