// Package report writes batch results and statistics to disk in the
// supported output formats.
package report

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/scopestat/pkg/model"
	"github.com/Sumatoshi-tech/scopestat/pkg/persist"
	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
)

// Format is an output format selector.
type Format string

// Supported formats.
const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatStats    Format = "stats"
	FormatYAML     Format = "yaml"
	FormatPlot     Format = "plot"
	FormatMarkdown Format = "md"
)

// Output file names.
const (
	ResultsBasename = "analysis-results"
	StatsBasename   = "analysis-stats"
	FilesCSV        = "analysis-files.csv"
	SymbolsCSV      = "analysis-symbols.csv"
	MetricsCSV      = "analysis-metrics.csv"
	PlotFile        = "analysis-report.html"
	MarkdownFile    = "analysis-summary.md"
)

const dirPerm = 0o755

// ErrUnknownFormat is returned by ParseFormats for unsupported names.
var ErrUnknownFormat = errors.New("unknown output format")

var allFormats = []Format{FormatJSON, FormatCSV, FormatStats, FormatYAML, FormatPlot, FormatMarkdown}

// DefaultFormats returns the formats written when none are configured.
func DefaultFormats() []Format {
	return []Format{FormatJSON, FormatCSV}
}

// ParseFormats parses format names, accepting comma-separated entries and
// dropping duplicates. An empty list selects DefaultFormats.
func ParseFormats(names []string) ([]Format, error) {
	var formats []Format

	for _, name := range names {
		for part := range strings.SplitSeq(name, ",") {
			f := Format(strings.ToLower(strings.TrimSpace(part)))
			if f == "" {
				continue
			}

			if !slices.Contains(allFormats, f) {
				return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, part)
			}

			if !slices.Contains(formats, f) {
				formats = append(formats, f)
			}
		}
	}

	if len(formats) == 0 {
		return DefaultFormats(), nil
	}

	return formats, nil
}

// Options configures an Exporter.
type Options struct {
	Logger *slog.Logger
	// Dir is the output directory. Empty means the working directory.
	Dir     string
	Formats []Format
	// Variant is used when no statistics are available.
	Variant stats.Variant
	// Compress also writes a zstd archive of the batch result.
	Compress bool
}

// Exporter writes report files.
type Exporter struct {
	logger   *slog.Logger
	dir      string
	formats  []Format
	variant  stats.Variant
	compress bool
}

// NewExporter creates an Exporter.
func NewExporter(opts Options) *Exporter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	formats := opts.Formats
	if len(formats) == 0 {
		formats = DefaultFormats()
	}

	return &Exporter{
		logger:   logger,
		dir:      dir,
		formats:  formats,
		variant:  opts.Variant,
		compress: opts.Compress,
	}
}

// Export writes every configured format and returns the written paths in
// order. st may be nil when the batch has no analyzed files; formats derived
// from statistics are then skipped.
func (e *Exporter) Export(result *model.BatchResult, st *stats.Statistics) ([]string, error) {
	err := os.MkdirAll(e.dir, dirPerm)
	if err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	variant := stats.Resolve(e.variant, result.Results)
	if st != nil {
		variant = st.Variant
	}

	var written []string

	for _, format := range e.formats {
		paths, writeErr := e.write(format, result, st, variant)
		if writeErr != nil {
			return written, writeErr
		}

		written = append(written, paths...)
	}

	if e.compress {
		path, saveErr := persist.NewPersister[model.BatchResult](ResultsBasename, persist.NewZstdCodec(persist.NewJSONCodec())).
			Save(e.dir, result)
		if saveErr != nil {
			return written, fmt.Errorf("write compressed results: %w", saveErr)
		}

		written = append(written, path)
	}

	return written, nil
}

func (e *Exporter) write(format Format, result *model.BatchResult, st *stats.Statistics, variant stats.Variant) ([]string, error) {
	if st == nil && format != FormatJSON && format != FormatCSV {
		e.logger.Warn("skipping report without statistics", "format", string(format))

		return nil, nil
	}

	switch format {
	case FormatJSON:
		return e.save(ResultsBasename, persist.NewJSONCodec(), result)
	case FormatCSV:
		return e.writeCSV(result.Results, variant)
	case FormatStats:
		return e.save(StatsBasename, persist.NewJSONCodec(), st)
	case FormatYAML:
		return e.save(StatsBasename, persist.NewYAMLCodec(), st)
	case FormatPlot:
		return e.writeFile(PlotFile, func(w io.Writer) error { return WritePlot(w, st) })
	case FormatMarkdown:
		return e.writeFile(MarkdownFile, func(w io.Writer) error { return WriteMarkdown(w, result, st) })
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func (e *Exporter) save(basename string, codec persist.Codec, state any) ([]string, error) {
	path, err := persist.SaveState(e.dir, basename, codec, state)
	if err != nil {
		return nil, fmt.Errorf("write %s%s: %w", basename, codec.Extension(), err)
	}

	return []string{path}, nil
}

type csvTable struct {
	write func(io.Writer) error
	name  string
}

func (e *Exporter) writeCSV(results []*model.SourceFileRecord, variant stats.Variant) ([]string, error) {
	tables := []csvTable{
		{func(w io.Writer) error { return WriteFilesCSV(w, results, variant) }, FilesCSV},
		{func(w io.Writer) error { return WriteSymbolsCSV(w, results, variant) }, SymbolsCSV},
	}

	if variant == stats.VariantQuality {
		tables = append(tables, csvTable{func(w io.Writer) error { return WriteMetricsCSV(w, results) }, MetricsCSV})
	}

	var written []string

	for _, tbl := range tables {
		paths, err := e.writeFile(tbl.name, tbl.write)
		if err != nil {
			return written, err
		}

		written = append(written, paths...)
	}

	return written, nil
}

func (e *Exporter) writeFile(name string, write func(io.Writer) error) ([]string, error) {
	path := filepath.Join(e.dir, name)

	err := persist.WriteAtomic(path, write)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}

	return []string{path}, nil
}
