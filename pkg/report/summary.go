package report

import (
	"bufio"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/scopestat/pkg/model"
	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
	"github.com/Sumatoshi-tech/scopestat/pkg/terminal"
)

const (
	summaryLabelWidth = 10
	summaryPathWidth  = 60
	summaryMaxErrors  = 10
)

// SummaryOptions configures WriteSummary.
type SummaryOptions struct {
	Terminal terminal.Config
	// Threshold drives score coloring.
	Threshold float64
}

func consoleTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false

	return tbl
}

// WriteSummary prints the human-readable run summary: totals, score
// distribution, top files, symbol kinds and, for the quality variant, the
// metric rollups. st may be nil when nothing was analyzed.
func WriteSummary(w io.Writer, result *model.BatchResult, st *stats.Statistics, opts SummaryOptions) error {
	out := bufio.NewWriter(w)
	term := opts.Terminal

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = stats.DefaultComplexityThreshold
	}

	width := term.Width
	if width <= 0 {
		width = terminal.DefaultWidth
	}

	right := fmt.Sprintf("%s files", humanize.Comma(int64(result.TotalFiles)))
	if st != nil {
		right = fmt.Sprintf("%s | %s", st.Variant, right)
	}

	fmt.Fprintln(out, term.Bold(terminal.DrawHeader("SCOPESTAT SUMMARY", right, width)))
	fmt.Fprintf(out, "  Analyzed: %s   Failed: %s\n",
		term.Colorize(humanize.Comma(int64(result.AnalyzedFiles)), terminal.ColorGreen),
		failedText(term, result.FailedFiles))

	if st == nil {
		fmt.Fprintln(out, "  No files analyzed.")

		return flushSummary(out)
	}

	fmt.Fprintf(out, "  Symbols: %s   Dependencies: %s\n",
		humanize.Comma(int64(st.Symbols)), humanize.Comma(int64(st.Dependencies)))
	fmt.Fprintf(out, "  LOC avg/median/p95: %s / %s / %s   Avg score: %s\n",
		FormatRate(st.AvgLOC), FormatRate(st.MedianLOC), FormatRate(st.P95LOC),
		term.Colorize(FormatScore(st.AvgScore), terminal.ColorForRisk(st.AvgScore, threshold)))

	if st.Variant == stats.VariantQuality {
		fmt.Fprintf(out, "  Comment lines avg: %s   Blank lines avg: %s   Violations: %d   Errors: %d\n",
			FormatRate(st.AvgCommentLines), FormatRate(st.AvgBlankLines), st.Violations, st.Errors)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, term.Bold("Score distribution"))

	for _, b := range st.Distribution {
		fraction := 0.0
		if st.Files > 0 {
			fraction = float64(b.Count) / float64(st.Files)
		}

		fmt.Fprintln(out, "  "+terminal.DrawPercentBar(b.Range, fraction, b.Count, summaryLabelWidth, terminal.DefaultBarWidth))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, term.Bold("Top files"))

	files := consoleTable()
	files.AppendHeader(table.Row{"#", "File", "Score", "LOC", "Issues"})

	for i, f := range st.TopFiles {
		files.AppendRow(table.Row{
			i + 1,
			terminal.TruncateLeft(f.Path, summaryPathWidth),
			term.Colorize(FormatScore(f.Score), terminal.ColorForRisk(f.Score, threshold)),
			f.LOC,
			f.Issues,
		})
	}

	fmt.Fprintln(out, files.Render())
	fmt.Fprintln(out)
	fmt.Fprintln(out, term.Bold("Symbol kinds"))
	fmt.Fprintln(out, groupTable(st.SymbolKinds).Render())

	if len(st.MetricCategories) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, term.Bold("Metric categories"))
		fmt.Fprintln(out, groupTable(st.MetricCategories).Render())
	}

	writeErrors(out, term, result.Errors)

	return flushSummary(out)
}

func failedText(term terminal.Config, failed int) string {
	text := humanize.Comma(int64(failed))
	if failed == 0 {
		return text
	}

	return term.Colorize(text, terminal.ColorRed)
}

func groupTable(groups []stats.Group) table.Writer {
	tbl := consoleTable()
	tbl.AppendHeader(table.Row{"Key", "Count", "Avg", "Avg LOC", "Max", "Issues"})

	for _, g := range groups {
		tbl.AppendRow(table.Row{g.Key, g.Count, FormatScore(g.Avg), FormatRate(g.AvgLOC), FormatScore(g.Max), g.Issues})
	}

	return tbl
}

func writeErrors(out io.Writer, term terminal.Config, errs []model.FileError) {
	if len(errs) == 0 {
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, term.Colorize(fmt.Sprintf("Errors (%d)", len(errs)), terminal.ColorRed))

	for i, fe := range errs {
		if i == summaryMaxErrors {
			fmt.Fprintf(out, "  ... %d more\n", len(errs)-summaryMaxErrors)

			return
		}

		fmt.Fprintf(out, "  %s: %s\n", fe.Path, terminal.TruncateWithEllipsis(fe.Error, summaryPathWidth))
	}
}

func flushSummary(out *bufio.Writer) error {
	err := out.Flush()
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}
