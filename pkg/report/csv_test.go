package report_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/scopestat/pkg/model"
	"github.com/Sumatoshi-tech/scopestat/pkg/report"
	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
)

func ptr[T any](v T) *T { return &v }

func complexityResults() []*model.SourceFileRecord {
	return []*model.SourceFileRecord{
		{
			Path:       "src/a.ts",
			LOC:        10,
			Complexity: ptr(0.1),
			Symbols: []model.SymbolRecord{
				{Kind: "function", Name: "foo", LOC: 5, Complexity: ptr(0.25)},
			},
			Outgoing: []model.OutgoingRelation{{Relation: "import", Strength: 1}},
		},
		{
			Path:       "src/b.ts",
			LOC:        20,
			Complexity: ptr(0.9),
			Symbols:    []model.SymbolRecord{},
			Outgoing:   []model.OutgoingRelation{},
		},
	}
}

func qualityResults() []*model.SourceFileRecord {
	return []*model.SourceFileRecord{
		{
			Path:         "q.ts",
			LOC:          40,
			CommentLines: ptr(5),
			BlankLines:   ptr(3),
			Metrics: []model.QualityMetric{
				{Name: "file_loc", Value: 120, Threshold: ptr(100.0), Severity: model.SeverityWarning, Message: ptr("too long")},
			},
			Symbols: []model.SymbolRecord{
				{
					Kind: "function", Name: "run", LOC: 12, CyclomaticComplexity: ptr(7),
					Metrics: []model.QualityMetric{{Name: "function_length", Value: 12, Severity: model.SeverityInfo}},
				},
			},
			Outgoing: []model.OutgoingRelation{},
		},
	}
}

func TestWriteFilesCSV_Complexity(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	err := report.WriteFilesCSV(&buf, complexityResults(), stats.VariantComplexity)
	require.NoError(t, err)

	assert.Equal(t,
		"File,LOC,Complexity,Symbols,Dependencies\n"+
			"\"src/a.ts\",10,0.100,1,1\n"+
			"\"src/b.ts\",20,0.900,0,0\n",
		buf.String())
}

func TestWriteSymbolsCSV_Complexity(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	err := report.WriteSymbolsCSV(&buf, complexityResults(), stats.VariantComplexity)
	require.NoError(t, err)

	assert.Equal(t,
		"File,Symbol Type,Symbol Name,LOC,Complexity\n"+
			"\"src/a.ts\",\"function\",\"foo\",5,0.250\n",
		buf.String())
}

func TestWriteCSV_Quality(t *testing.T) {
	t.Parallel()

	var files, symbols, metrics bytes.Buffer

	require.NoError(t, report.WriteFilesCSV(&files, qualityResults(), stats.VariantQuality))
	require.NoError(t, report.WriteSymbolsCSV(&symbols, qualityResults(), stats.VariantQuality))
	require.NoError(t, report.WriteMetricsCSV(&metrics, qualityResults()))

	assert.Equal(t,
		"File,LOC,Comment Lines,Blank Lines,Violation Ratio,Symbols,Dependencies,Warnings,Errors\n"+
			"\"q.ts\",40,5,3,0.500,1,0,1,0\n",
		files.String())

	assert.Equal(t,
		"File,Symbol Type,Symbol Name,LOC,Score,Issues\n"+
			"\"q.ts\",\"function\",\"run\",12,7.000,0\n",
		symbols.String())

	assert.Equal(t,
		"File,Symbol,Metric,Category,Value,Threshold,Severity,Message\n"+
			"\"q.ts\",\"\",\"file_loc\",size,120.000,100.000,warning,\"too long\"\n"+
			"\"q.ts\",\"function:run\",\"function_length\",structure,12.000,,info,\"\"\n",
		metrics.String())
}

func TestQuote(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"plain"`, report.Quote("plain"))
	assert.Equal(t, `"we""ird,name.ts"`, report.Quote(`we"ird,name.ts`))
	assert.Equal(t, `""`, report.Quote(""))
}

func TestFormatNumbers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.333", report.FormatScore(1.0/3))
	assert.Equal(t, "15.0", report.FormatRate(15))
	assert.Equal(t, "2.5", report.FormatRate(2.45000001))
}

var errWriteFailed = errors.New("disk full")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errWriteFailed }

func TestWriteFilesCSV_PropagatesWriteError(t *testing.T) {
	t.Parallel()

	err := report.WriteFilesCSV(failingWriter{}, complexityResults(), stats.VariantComplexity)
	require.ErrorIs(t, err, errWriteFailed)
}
