package stats

import (
	"fmt"

	"github.com/Sumatoshi-tech/scopestat/pkg/model"
)

// Ranking and distribution defaults.
const (
	DefaultTopFiles   = 10
	DefaultTopSymbols = 20
	DefaultBuckets    = 5
	DefaultBucketMin  = 0.0
	DefaultBucketMax  = 1.0
)

// Options tunes Compute. Zero values select the defaults.
type Options struct {
	Variant             Variant
	ComplexityThreshold float64
	TopFiles            int
	TopSymbols          int
	Buckets             int
	BucketMin           float64
	BucketMax           float64
}

// DefaultOptions returns the reference aggregation settings.
func DefaultOptions() Options {
	return Options{
		Variant:             VariantAuto,
		ComplexityThreshold: DefaultComplexityThreshold,
		TopFiles:            DefaultTopFiles,
		TopSymbols:          DefaultTopSymbols,
		Buckets:             DefaultBuckets,
		BucketMin:           DefaultBucketMin,
		BucketMax:           DefaultBucketMax,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()

	if o.Variant == "" {
		o.Variant = def.Variant
	}

	if o.ComplexityThreshold <= 0 {
		o.ComplexityThreshold = def.ComplexityThreshold
	}

	if o.TopFiles <= 0 {
		o.TopFiles = def.TopFiles
	}

	if o.TopSymbols <= 0 {
		o.TopSymbols = def.TopSymbols
	}

	if o.Buckets <= 0 {
		o.Buckets = def.Buckets
	}

	if o.BucketMin == 0 && o.BucketMax == 0 {
		o.BucketMin, o.BucketMax = def.BucketMin, def.BucketMax
	}

	return o
}

// FileRank is one entry of the top files ranking.
type FileRank struct {
	Path   string  `json:"path"   yaml:"path"`
	Score  float64 `json:"score"  yaml:"score"`
	LOC    int     `json:"loc"    yaml:"loc"`
	Issues int     `json:"issues" yaml:"issues"`
}

// SymbolRank is one entry of the top symbols ranking.
type SymbolRank struct {
	File   string  `json:"file"   yaml:"file"`
	Symbol string  `json:"symbol" yaml:"symbol"`
	Kind   string  `json:"kind"   yaml:"kind"`
	Score  float64 `json:"score"  yaml:"score"`
	LOC    int     `json:"loc"    yaml:"loc"`
}

// Statistics is the derived view of one batch.
type Statistics struct {
	Variant          Variant      `json:"variant"                     yaml:"variant"`
	Files            int          `json:"files"                       yaml:"files"`
	Symbols          int          `json:"symbols"                     yaml:"symbols"`
	Dependencies     int          `json:"dependencies"                yaml:"dependencies"`
	AvgLOC           float64      `json:"avg_loc"                     yaml:"avg_loc"`
	MedianLOC        float64      `json:"median_loc"                  yaml:"median_loc"`
	P95LOC           float64      `json:"p95_loc"                     yaml:"p95_loc"`
	AvgScore         float64      `json:"avg_score"                   yaml:"avg_score"`
	AvgCommentLines  float64      `json:"avg_comment_lines"           yaml:"avg_comment_lines"`
	AvgBlankLines    float64      `json:"avg_blank_lines"             yaml:"avg_blank_lines"`
	Distribution     []Bucket     `json:"distribution"                yaml:"distribution"`
	TopFiles         []FileRank   `json:"top_files"                   yaml:"top_files"`
	TopSymbols       []SymbolRank `json:"top_symbols"                 yaml:"top_symbols"`
	SymbolKinds      []Group      `json:"symbol_kinds"                yaml:"symbol_kinds"`
	MetricNames      []Group      `json:"metric_names,omitempty"      yaml:"metric_names,omitempty"`
	MetricCategories []Group      `json:"metric_categories,omitempty" yaml:"metric_categories,omitempty"`
	Violations       int          `json:"violations"                  yaml:"violations"`
	Errors           int          `json:"errors"                      yaml:"errors"`
}

// Compute derives statistics from successfully analyzed records. An empty
// input yields ErrNoData.
func Compute(results []*model.SourceFileRecord, opts Options) (*Statistics, error) {
	if len(results) == 0 {
		return nil, ErrNoData
	}

	opts = opts.withDefaults()
	profile := ProfileFor(Resolve(opts.Variant, results), opts.ComplexityThreshold)

	layout, err := EqualWidthBuckets(opts.BucketMin, opts.BucketMax, opts.Buckets)
	if err != nil {
		return nil, fmt.Errorf("distribution layout: %w", err)
	}

	files := rankFiles(results, profile)
	symbols := collectSymbols(results, profile)

	st := &Statistics{
		Variant:      profile.Variant,
		Files:        len(results),
		Symbols:      len(symbols),
		Distribution: Distribute(files, func(f FileRank) float64 { return f.Score }, layout),
		TopFiles:     TopN(files, opts.TopFiles, func(f FileRank) float64 { return f.Score }),
		TopSymbols:   topSymbols(symbols, opts.TopSymbols),
	}

	err = st.fillAverages(results, files)
	if err != nil {
		return nil, err
	}

	st.SymbolKinds = GroupBy(symbols, func(s rankedSymbol) string { return s.Kind }, GroupFields[rankedSymbol]{
		Value: func(s rankedSymbol) float64 { return s.Score },
		LOC:   func(s rankedSymbol) float64 { return float64(s.LOC) },
		Issue: func(s rankedSymbol) bool { return s.issue },
	})

	for _, r := range results {
		st.Dependencies += len(r.Outgoing)
		st.Violations += profile.FileIssues(r)
		st.Errors += profile.FileErrors(r)
	}

	if profile.PerMetric {
		st.MetricNames, st.MetricCategories = metricRollups(results)
	}

	return st, nil
}

func (st *Statistics) fillAverages(results []*model.SourceFileRecord, files []FileRank) error {
	var err error

	st.AvgLOC, err = Average(results, func(r *model.SourceFileRecord) float64 { return float64(r.LOC) })
	if err != nil {
		return fmt.Errorf("average loc: %w", err)
	}

	st.AvgScore, err = Average(files, func(f FileRank) float64 { return f.Score })
	if err != nil {
		return fmt.Errorf("average score: %w", err)
	}

	st.AvgCommentLines, err = Average(results, func(r *model.SourceFileRecord) float64 { return float64(r.CommentCount()) })
	if err != nil {
		return fmt.Errorf("average comment lines: %w", err)
	}

	st.AvgBlankLines, err = Average(results, func(r *model.SourceFileRecord) float64 { return float64(r.BlankCount()) })
	if err != nil {
		return fmt.Errorf("average blank lines: %w", err)
	}

	locs := make([]float64, len(results))
	for i, r := range results {
		locs[i] = float64(r.LOC)
	}

	st.MedianLOC = Median(locs)
	st.P95LOC = Percentile(locs, PercentileP95)

	return nil
}

func rankFiles(results []*model.SourceFileRecord, profile Profile) []FileRank {
	files := make([]FileRank, len(results))

	for i, r := range results {
		files[i] = FileRank{
			Path:   r.Path,
			Score:  profile.FileScore(r),
			LOC:    r.LOC,
			Issues: profile.FileIssues(r),
		}
	}

	return files
}

// rankedSymbol carries the issue flag alongside the exported rank.
type rankedSymbol struct {
	SymbolRank

	issue bool
}

func collectSymbols(results []*model.SourceFileRecord, profile Profile) []rankedSymbol {
	var symbols []rankedSymbol

	for _, r := range results {
		for _, sym := range r.Symbols {
			symbols = append(symbols, rankedSymbol{
				SymbolRank: SymbolRank{
					File:   r.Path,
					Symbol: sym.QualifiedName(),
					Kind:   sym.Kind,
					Score:  profile.SymbolScore(sym),
					LOC:    sym.LOC,
				},
				issue: profile.SymbolIssue(sym),
			})
		}
	}

	return symbols
}

func topSymbols(symbols []rankedSymbol, n int) []SymbolRank {
	top := TopN(symbols, n, func(s rankedSymbol) float64 { return s.Score })
	out := make([]SymbolRank, len(top))

	for i, s := range top {
		out[i] = s.SymbolRank
	}

	return out
}

func metricRollups(results []*model.SourceFileRecord) (names, categories []Group) {
	var entries []model.MetricEntry

	for _, r := range results {
		entries = append(entries, r.AllMetrics()...)
	}

	fields := GroupFields[model.MetricEntry]{
		Value: func(e model.MetricEntry) float64 { return e.Metric.Value },
		Issue: func(e model.MetricEntry) bool { return e.Metric.Severity.IsIssue() },
	}

	names = GroupBy(entries, func(e model.MetricEntry) string { return e.Metric.Name }, fields)
	categories = GroupBy(entries, func(e model.MetricEntry) string { return Category(e.Metric.Name) }, fields)

	return names, categories
}
