package report

import (
	"bufio"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/scopestat/pkg/model"
	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
)

const maxMarkdownErrors = 50

func markdownTable(header table.Row, rows []table.Row) string {
	tbl := table.NewWriter()
	tbl.AppendHeader(header)
	tbl.AppendRows(rows)

	return tbl.RenderMarkdown()
}

func groupRows(groups []stats.Group) []table.Row {
	rows := make([]table.Row, len(groups))

	for i, g := range groups {
		rows[i] = table.Row{g.Key, g.Count, FormatScore(g.Avg), FormatScore(g.Max), g.Issues}
	}

	return rows
}

// WriteMarkdown writes a markdown digest of the batch and its statistics.
func WriteMarkdown(w io.Writer, result *model.BatchResult, st *stats.Statistics) error {
	out := bufio.NewWriter(w)

	fmt.Fprintf(out, "# scopestat report (%s)\n\n", st.Variant)

	fmt.Fprintln(out, "## Summary")
	fmt.Fprintln(out)
	fmt.Fprintln(out, markdownTable(table.Row{"Metric", "Value"}, []table.Row{
		{"Total files", humanize.Comma(int64(result.TotalFiles))},
		{"Analyzed files", humanize.Comma(int64(result.AnalyzedFiles))},
		{"Failed files", humanize.Comma(int64(result.FailedFiles))},
		{"Symbols", humanize.Comma(int64(st.Symbols))},
		{"Dependencies", humanize.Comma(int64(st.Dependencies))},
		{"Average LOC", FormatRate(st.AvgLOC)},
		{"Median LOC", FormatRate(st.MedianLOC)},
		{"P95 LOC", FormatRate(st.P95LOC)},
		{"Average score", FormatScore(st.AvgScore)},
		{"Violations", st.Violations},
		{"Errors", st.Errors},
	}))
	fmt.Fprintln(out)

	rows := make([]table.Row, len(st.Distribution))
	for i, b := range st.Distribution {
		rows[i] = table.Row{b.Range, b.Count}
	}

	fmt.Fprintln(out, "## Distribution")
	fmt.Fprintln(out)
	fmt.Fprintln(out, markdownTable(table.Row{"Range", "Files"}, rows))
	fmt.Fprintln(out)

	rows = make([]table.Row, len(st.TopFiles))
	for i, f := range st.TopFiles {
		rows[i] = table.Row{i + 1, f.Path, FormatScore(f.Score), f.LOC, f.Issues}
	}

	fmt.Fprintln(out, "## Top files")
	fmt.Fprintln(out)
	fmt.Fprintln(out, markdownTable(table.Row{"#", "File", "Score", "LOC", "Issues"}, rows))
	fmt.Fprintln(out)

	rows = make([]table.Row, len(st.TopSymbols))
	for i, s := range st.TopSymbols {
		rows[i] = table.Row{i + 1, s.Kind + ":" + s.Symbol, s.File, FormatScore(s.Score), s.LOC}
	}

	fmt.Fprintln(out, "## Top symbols")
	fmt.Fprintln(out)
	fmt.Fprintln(out, markdownTable(table.Row{"#", "Symbol", "File", "Score", "LOC"}, rows))
	fmt.Fprintln(out)

	groupHeader := table.Row{"Key", "Count", "Avg", "Max", "Issues"}

	fmt.Fprintln(out, "## Symbol kinds")
	fmt.Fprintln(out)
	fmt.Fprintln(out, markdownTable(groupHeader, groupRows(st.SymbolKinds)))
	fmt.Fprintln(out)

	if len(st.MetricNames) > 0 {
		fmt.Fprintln(out, "## Metrics")
		fmt.Fprintln(out)
		fmt.Fprintln(out, markdownTable(groupHeader, groupRows(st.MetricNames)))
		fmt.Fprintln(out)
		fmt.Fprintln(out, "## Metric categories")
		fmt.Fprintln(out)
		fmt.Fprintln(out, markdownTable(groupHeader, groupRows(st.MetricCategories)))
		fmt.Fprintln(out)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(out, "## Errors")
		fmt.Fprintln(out)

		for i, fe := range result.Errors {
			if i == maxMarkdownErrors {
				fmt.Fprintf(out, "- ... %d more\n", len(result.Errors)-maxMarkdownErrors)

				break
			}

			fmt.Fprintf(out, "- `%s`: %s\n", fe.Path, fe.Error)
		}
	}

	err := out.Flush()
	if err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}

	return nil
}
