package stats

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// Sentinel errors for aggregation.
var (
	ErrNoData         = errors.New("no data to aggregate")
	ErrInvalidBuckets = errors.New("invalid bucket layout")
)

// Average returns the mean of value over items. An empty input is reported as
// ErrNoData rather than a silent zero or NaN.
func Average[T any](items []T, value func(T) float64) (float64, error) {
	if len(items) == 0 {
		return 0, ErrNoData
	}

	var sum float64

	for _, item := range items {
		sum += value(item)
	}

	return sum / float64(len(items)), nil
}

// Bucket is one range of a distribution. Every bucket is [Min, Max) except the
// last of a layout, which also includes Max.
type Bucket struct {
	Range string  `json:"range" yaml:"range"`
	Min   float64 `json:"min"   yaml:"min"`
	Max   float64 `json:"max"   yaml:"max"`
	Count int     `json:"count" yaml:"count"`
}

// EqualWidthBuckets splits [lo, hi] into n equal-width buckets with zero counts.
func EqualWidthBuckets(lo, hi float64, n int) ([]Bucket, error) {
	if n < 1 || !(hi > lo) {
		return nil, fmt.Errorf("%w: [%g, %g] in %d buckets", ErrInvalidBuckets, lo, hi, n)
	}

	buckets := make([]Bucket, n)
	span := hi - lo

	for i := range n {
		// Edges derive from the index: 0.6, never 0.6000000000000001.
		bucketMin := lo + span*float64(i)/float64(n)
		bucketMax := lo + span*float64(i+1)/float64(n)

		if i == n-1 {
			bucketMax = hi
		}

		buckets[i] = Bucket{
			Range: fmt.Sprintf("%.1f-%.1f", bucketMin, bucketMax),
			Min:   bucketMin,
			Max:   bucketMax,
		}
	}

	return buckets, nil
}

// Distribute counts value(item) into a copy of layout. Values below the first
// bucket land in it and values above the last land in the last, so the counts
// always sum to len(items).
func Distribute[T any](items []T, value func(T) float64, layout []Bucket) []Bucket {
	buckets := slices.Clone(layout)
	if len(buckets) == 0 {
		return buckets
	}

	for i := range buckets {
		buckets[i].Count = 0
	}

	for _, item := range items {
		buckets[bucketIndex(buckets, value(item))].Count++
	}

	return buckets
}

func bucketIndex(buckets []Bucket, v float64) int {
	last := len(buckets) - 1

	for i, b := range buckets[:last] {
		if v < b.Max {
			return i
		}
	}

	return last
}

// TopN returns the n highest-scoring items in descending order. Ties keep their
// input order. The input slice is not modified.
func TopN[T any](items []T, n int, score func(T) float64) []T {
	if n <= 0 {
		return []T{}
	}

	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return cmp.Compare(score(b), score(a))
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}

	if sorted == nil {
		return []T{}
	}

	return sorted
}

// Group is the rollup of all entries sharing a key.
type Group struct {
	Key    string  `json:"key"     yaml:"key"`
	Count  int     `json:"count"   yaml:"count"`
	Sum    float64 `json:"sum"     yaml:"sum"`
	Avg    float64 `json:"avg"     yaml:"avg"`
	AvgLOC float64 `json:"avg_loc" yaml:"avg_loc"`
	Max    float64 `json:"max"     yaml:"max"`
	Issues int     `json:"issues"  yaml:"issues"`
}

// GroupFields selects what GroupBy aggregates. LOC and Issue are optional.
type GroupFields[T any] struct {
	Value func(T) float64
	LOC   func(T) float64
	Issue func(T) bool
}

// GroupBy rolls items up by key. Groups are ordered by count descending, then
// key ascending.
func GroupBy[T any](items []T, key func(T) string, fields GroupFields[T]) []Group {
	index := make(map[string]int)
	groups := make([]Group, 0)
	locSums := make([]float64, 0)

	for _, item := range items {
		k := key(item)

		pos, ok := index[k]
		if !ok {
			pos = len(groups)
			index[k] = pos
			groups = append(groups, Group{Key: k})
			locSums = append(locSums, 0)
		}

		g := &groups[pos]

		var v float64
		if fields.Value != nil {
			v = fields.Value(item)
		}

		if g.Count == 0 || v > g.Max {
			g.Max = v
		}

		g.Count++
		g.Sum += v

		if fields.LOC != nil {
			locSums[pos] += fields.LOC(item)
		}

		if fields.Issue != nil && fields.Issue(item) {
			g.Issues++
		}
	}

	for i := range groups {
		groups[i].Avg = groups[i].Sum / float64(groups[i].Count)
		groups[i].AvgLOC = locSums[i] / float64(groups[i].Count)
	}

	slices.SortFunc(groups, func(a, b Group) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}

		return cmp.Compare(a.Key, b.Key)
	})

	return groups
}
