// Package model defines the per-file analysis records produced by the external
// analyzer and the batch accumulator that collects them.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Severity classifies a quality metric observation.
type Severity string

// Severity levels reported by the analyzer.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ErrInconsistentBatch is returned when batch counters disagree with its contents.
var ErrInconsistentBatch = errors.New("inconsistent batch result")

// UnmarshalJSON accepts any letter case ("Warning", "warning", "WARNING").
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("decode severity: %w", err)
	}

	*s = ParseSeverity(raw)

	return nil
}

// ParseSeverity normalizes a severity string. Unknown values map to info.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(SeverityError):
		return SeverityError
	case string(SeverityWarning):
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// IsIssue reports whether the severity counts as a violation (warning or error).
func (s Severity) IsIssue() bool {
	return s == SeverityWarning || s == SeverityError
}

// QualityMetric is a named numeric observation with an optional threshold.
type QualityMetric struct {
	Name      string   `json:"name"`
	Value     float64  `json:"value"`
	Threshold *float64 `json:"threshold,omitempty"`
	Severity  Severity `json:"severity"`
	Message   *string  `json:"message,omitempty"`
}

// MessageText returns the message or an empty string.
func (m QualityMetric) MessageText() string {
	if m.Message == nil {
		return ""
	}

	return *m.Message
}

// SymbolRecord is one declared program symbol within a source file.
type SymbolRecord struct {
	Kind                 string          `json:"kind"`
	Name                 string          `json:"name"`
	LOC                  int             `json:"loc"`
	Complexity           *float64        `json:"complexity,omitempty"`
	CyclomaticComplexity *int            `json:"cyclomatic_complexity,omitempty"`
	Metrics              []QualityMetric `json:"metrics,omitempty"`
}

// ComplexityScore returns the complexity score, or 0 when absent.
func (s SymbolRecord) ComplexityScore() float64 {
	if s.Complexity == nil {
		return 0
	}

	return *s.Complexity
}

// IssueCount returns the number of warning or error metrics on the symbol.
func (s SymbolRecord) IssueCount() int {
	return countIssues(s.Metrics)
}

// QualifiedName returns "kind:name".
func (s SymbolRecord) QualifiedName() string {
	return s.Kind + ":" + s.Name
}

// OutgoingRelation is a directed dependency edge from the owning file.
type OutgoingRelation struct {
	Source   *string `json:"source,omitempty"`
	Target   *string `json:"target,omitempty"`
	Relation string  `json:"relation"`
	Strength float64 `json:"strength"`
	Files    *int    `json:"files,omitempty"`
}

// SourceFileRecord is the analyzer's view of one source file.
//
//nolint:govet // field order follows the analyzer's JSON layout.
type SourceFileRecord struct {
	Path         string             `json:"path"`
	Language     string             `json:"language,omitempty"`
	LOC          int                `json:"loc"`
	CommentLines *int               `json:"comment_lines,omitempty"`
	BlankLines   *int               `json:"blank_lines,omitempty"`
	Complexity   *float64           `json:"complexity,omitempty"`
	Symbols      []SymbolRecord     `json:"symbols"`
	Metrics      []QualityMetric    `json:"metrics,omitempty"`
	Outgoing     []OutgoingRelation `json:"outgoing"`
	Incoming     []OutgoingRelation `json:"incoming,omitempty"`
}

// ComplexityScore returns the file complexity, or 0 when absent.
func (r *SourceFileRecord) ComplexityScore() float64 {
	if r.Complexity == nil {
		return 0
	}

	return *r.Complexity
}

// CommentCount returns the comment-line count, or 0 when absent.
func (r *SourceFileRecord) CommentCount() int {
	if r.CommentLines == nil {
		return 0
	}

	return *r.CommentLines
}

// BlankCount returns the blank-line count, or 0 when absent.
func (r *SourceFileRecord) BlankCount() int {
	if r.BlankLines == nil {
		return 0
	}

	return *r.BlankLines
}

// Normalize fills a missing path and replaces nil collections with empty ones
// so that re-encoded records always carry the symbols and outgoing arrays.
func (r *SourceFileRecord) Normalize(path string) {
	if r.Path == "" {
		r.Path = path
	}

	if r.Symbols == nil {
		r.Symbols = []SymbolRecord{}
	}

	if r.Outgoing == nil {
		r.Outgoing = []OutgoingRelation{}
	}
}

// HasMetrics reports whether the file or any of its symbols carries quality metrics.
func (r *SourceFileRecord) HasMetrics() bool {
	if len(r.Metrics) > 0 {
		return true
	}

	for _, sym := range r.Symbols {
		if len(sym.Metrics) > 0 {
			return true
		}
	}

	return false
}

// MetricEntry is a metric observation together with its owner.
// Symbol is empty for file-level metrics.
type MetricEntry struct {
	Path   string
	Symbol string
	Metric QualityMetric
}

// AllMetrics returns file-level metrics followed by symbol-level metrics in declaration order.
func (r *SourceFileRecord) AllMetrics() []MetricEntry {
	entries := make([]MetricEntry, 0, len(r.Metrics))

	for _, m := range r.Metrics {
		entries = append(entries, MetricEntry{Path: r.Path, Metric: m})
	}

	for _, sym := range r.Symbols {
		for _, m := range sym.Metrics {
			entries = append(entries, MetricEntry{Path: r.Path, Symbol: sym.QualifiedName(), Metric: m})
		}
	}

	return entries
}

// IssueCount returns the warning and error metrics of the file and its symbols.
func (r *SourceFileRecord) IssueCount() int {
	total := countIssues(r.Metrics)

	for _, sym := range r.Symbols {
		total += sym.IssueCount()
	}

	return total
}

// SeverityCount returns how many metrics of the file and its symbols have the given severity.
func (r *SourceFileRecord) SeverityCount(severity Severity) int {
	var total int

	for _, entry := range r.AllMetrics() {
		if entry.Metric.Severity == severity {
			total++
		}
	}

	return total
}

func countIssues(metrics []QualityMetric) int {
	var total int

	for _, m := range metrics {
		if m.Severity.IsIssue() {
			total++
		}
	}

	return total
}

// FileError is a failed file entry in a batch.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BatchResult accumulates the outcome of one batch run. Field order matches
// the analysis-results.json layout.
type BatchResult struct {
	TotalFiles    int                 `json:"totalFiles"`
	AnalyzedFiles int                 `json:"analyzedFiles"`
	FailedFiles   int                 `json:"failedFiles"`
	Results       []*SourceFileRecord `json:"results"`
	Errors        []FileError         `json:"errors"`
}

// NewBatchResult creates an empty batch for the given number of candidate files.
func NewBatchResult(total int) *BatchResult {
	return &BatchResult{
		TotalFiles: total,
		Results:    make([]*SourceFileRecord, 0, total),
		Errors:     []FileError{},
	}
}

// Append records a successfully analyzed file.
func (b *BatchResult) Append(record *SourceFileRecord) {
	b.Results = append(b.Results, record)
	b.AnalyzedFiles++
}

// Fail records a failed file.
func (b *BatchResult) Fail(path, message string) {
	b.Errors = append(b.Errors, FileError{Path: path, Error: message})
	b.FailedFiles++
}

// Validate checks the batch counters against its contents.
func (b *BatchResult) Validate() error {
	switch {
	case b.AnalyzedFiles != len(b.Results):
		return fmt.Errorf("%w: analyzedFiles=%d but %d results", ErrInconsistentBatch, b.AnalyzedFiles, len(b.Results))
	case b.FailedFiles != len(b.Errors):
		return fmt.Errorf("%w: failedFiles=%d but %d errors", ErrInconsistentBatch, b.FailedFiles, len(b.Errors))
	case b.TotalFiles != b.AnalyzedFiles+b.FailedFiles:
		return fmt.Errorf("%w: totalFiles=%d but %d analyzed + %d failed",
			ErrInconsistentBatch, b.TotalFiles, b.AnalyzedFiles, b.FailedFiles)
	}

	return nil
}

// LoadBatch decodes a batch previously written as analysis-results.json.
func LoadBatch(r io.Reader) (*BatchResult, error) {
	var batch BatchResult

	err := json.NewDecoder(r).Decode(&batch)
	if err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}

	if batch.Errors == nil {
		batch.Errors = []FileError{}
	}

	return &batch, nil
}
