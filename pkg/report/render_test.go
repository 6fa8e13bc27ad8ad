package report_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/scopestat/pkg/report"
	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
	"github.com/Sumatoshi-tech/scopestat/pkg/terminal"
)

func TestWritePlot(t *testing.T) {
	t.Parallel()

	st, err := stats.Compute(qualityResults(), stats.DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer

	require.NoError(t, report.WritePlot(&buf, st))

	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "scopestat report")
	assert.Contains(t, html, "Score distribution")
	assert.Contains(t, html, "Violations by metric")
}

func TestWritePlot_ComplexityHasNoMetricChart(t *testing.T) {
	t.Parallel()

	st, err := stats.Compute(complexityResults(), stats.DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer

	require.NoError(t, report.WritePlot(&buf, st))
	assert.NotContains(t, buf.String(), "Violations by metric")
}

func TestWriteMarkdown(t *testing.T) {
	t.Parallel()

	batch := batchOf(complexityResults(), "src/broken.ts")

	st, err := stats.Compute(batch.Results, stats.DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer

	require.NoError(t, report.WriteMarkdown(&buf, batch, st))

	md := buf.String()
	assert.True(t, strings.HasPrefix(md, "# scopestat report (complexity)\n"))
	assert.Contains(t, md, "## Top files")
	assert.Contains(t, md, "src/b.ts")
	assert.Contains(t, md, "function:foo")
	assert.Contains(t, md, "- `src/broken.ts`: analyzer exited with status 1")
	assert.NotContains(t, md, "## Metrics")
}

func TestWriteMarkdown_QualityRollups(t *testing.T) {
	t.Parallel()

	batch := batchOf(qualityResults())

	st, err := stats.Compute(batch.Results, stats.DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer

	require.NoError(t, report.WriteMarkdown(&buf, batch, st))

	md := buf.String()
	assert.Contains(t, md, "## Metric categories")
	assert.Contains(t, md, "file_loc")
	assert.Contains(t, md, "structure")
	assert.NotContains(t, md, "## Errors")
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()

	batch := batchOf(complexityResults(), "src/broken.ts")

	st, err := stats.Compute(batch.Results, stats.DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer

	err = report.WriteSummary(&buf, batch, st, report.SummaryOptions{
		Terminal: terminal.Config{Width: 80, NoColor: true},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "SCOPESTAT SUMMARY")
	assert.Contains(t, out, "complexity | 3 files")
	assert.Contains(t, out, "Analyzed: 2   Failed: 1")
	assert.Contains(t, out, "0.8-1.0")
	assert.Contains(t, out, "50.0%  (1)")
	assert.Contains(t, out, "src/b.ts")
	assert.Contains(t, out, "Errors (1)")
	assert.NotContains(t, out, "\x1b[")
}

func TestWriteSummary_NoStatistics(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	err := report.WriteSummary(&buf, batchOf(nil, "a.ts"), nil, report.SummaryOptions{
		Terminal: terminal.Config{NoColor: true},
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "No files analyzed.")
	assert.NotContains(t, buf.String(), "Score distribution")
}
