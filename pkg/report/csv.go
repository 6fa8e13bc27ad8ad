package report

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/scopestat/pkg/model"
	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
)

// Column layouts. Free-text cells (paths, names, messages) are always quoted.
var (
	complexityFileHeader   = []string{"File", "LOC", "Complexity", "Symbols", "Dependencies"}
	complexitySymbolHeader = []string{"File", "Symbol Type", "Symbol Name", "LOC", "Complexity"}
	qualityFileHeader      = []string{
		"File", "LOC", "Comment Lines", "Blank Lines", "Violation Ratio", "Symbols", "Dependencies", "Warnings", "Errors",
	}
	qualitySymbolHeader = []string{"File", "Symbol Type", "Symbol Name", "LOC", "Score", "Issues"}
	metricHeader        = []string{"File", "Symbol", "Metric", "Category", "Value", "Threshold", "Severity", "Message"}
)

const (
	scoreDecimals = 3
	rateDecimals  = 1
)

// csvWriter emits rows with a fixed quoting policy.
type csvWriter struct {
	w   *bufio.Writer
	err error
}

func newCSVWriter(w io.Writer) *csvWriter {
	return &csvWriter{w: bufio.NewWriter(w)}
}

func (c *csvWriter) row(cells ...string) {
	if c.err != nil {
		return
	}

	_, c.err = c.w.WriteString(strings.Join(cells, ",") + "\n")
}

func (c *csvWriter) flush() error {
	if c.err != nil {
		return c.err
	}

	return c.w.Flush()
}

// Quote wraps s in double quotes, doubling inner quotes.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// FormatScore prints a normalized score with three decimals.
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', scoreDecimals, 64)
}

// FormatRate prints an average or rate with one decimal.
func FormatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', rateDecimals, 64)
}

func formatInt(v int) string {
	return strconv.Itoa(v)
}

// WriteFilesCSV writes one row per analyzed file.
func WriteFilesCSV(w io.Writer, results []*model.SourceFileRecord, variant stats.Variant) error {
	out := newCSVWriter(w)

	if variant == stats.VariantQuality {
		out.row(qualityFileHeader...)

		for _, r := range results {
			out.row(
				Quote(r.Path),
				formatInt(r.LOC),
				formatInt(r.CommentCount()),
				formatInt(r.BlankCount()),
				FormatScore(stats.ViolationRatio(r)),
				formatInt(len(r.Symbols)),
				formatInt(len(r.Outgoing)),
				formatInt(r.SeverityCount(model.SeverityWarning)),
				formatInt(r.SeverityCount(model.SeverityError)),
			)
		}

		return out.flush()
	}

	out.row(complexityFileHeader...)

	for _, r := range results {
		out.row(
			Quote(r.Path),
			formatInt(r.LOC),
			FormatScore(r.ComplexityScore()),
			formatInt(len(r.Symbols)),
			formatInt(len(r.Outgoing)),
		)
	}

	return out.flush()
}

// WriteSymbolsCSV writes one row per symbol across all files.
func WriteSymbolsCSV(w io.Writer, results []*model.SourceFileRecord, variant stats.Variant) error {
	out := newCSVWriter(w)
	profile := stats.ProfileFor(variant, stats.DefaultComplexityThreshold)

	if variant == stats.VariantQuality {
		out.row(qualitySymbolHeader...)
	} else {
		out.row(complexitySymbolHeader...)
	}

	for _, r := range results {
		for _, sym := range r.Symbols {
			cells := []string{
				Quote(r.Path),
				Quote(sym.Kind),
				Quote(sym.Name),
				formatInt(sym.LOC),
				FormatScore(profile.SymbolScore(sym)),
			}

			if variant == stats.VariantQuality {
				cells = append(cells, formatInt(sym.IssueCount()))
			}

			out.row(cells...)
		}
	}

	return out.flush()
}

// WriteMetricsCSV writes one row per metric observation, file-level first.
func WriteMetricsCSV(w io.Writer, results []*model.SourceFileRecord) error {
	out := newCSVWriter(w)
	out.row(metricHeader...)

	for _, r := range results {
		for _, entry := range r.AllMetrics() {
			m := entry.Metric

			threshold := ""
			if m.Threshold != nil {
				threshold = FormatScore(*m.Threshold)
			}

			out.row(
				Quote(entry.Path),
				Quote(entry.Symbol),
				Quote(m.Name),
				stats.Category(m.Name),
				FormatScore(m.Value),
				threshold,
				string(m.Severity),
				Quote(m.MessageText()),
			)
		}
	}

	return out.flush()
}
