package stats

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/scopestat/pkg/model"
)

// Variant names the metric flavor the analyzer produced.
type Variant string

// Supported variants.
const (
	VariantAuto       Variant = "auto"
	VariantComplexity Variant = "complexity"
	VariantQuality    Variant = "quality"
)

// DefaultComplexityThreshold is the score at which a complexity-variant entry counts as an issue.
const DefaultComplexityThreshold = 0.8

// ErrUnknownVariant is returned for unrecognized variant names.
var ErrUnknownVariant = errors.New("unknown metric variant")

// ParseVariant parses a variant name. An empty name selects auto.
func ParseVariant(name string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(name))); v {
	case "":
		return VariantAuto, nil
	case VariantAuto, VariantComplexity, VariantQuality:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
}

// Resolve turns auto into a concrete variant: quality when any record carries
// metrics, otherwise complexity.
func Resolve(variant Variant, results []*model.SourceFileRecord) Variant {
	if variant != VariantAuto && variant != "" {
		return variant
	}

	for _, r := range results {
		if r.HasMetrics() {
			return VariantQuality
		}
	}

	return VariantComplexity
}

// Profile binds a variant to the fields the engine aggregates. Both variants
// run through the same Compute pipeline and differ only in these extractors.
type Profile struct {
	FileScore   func(*model.SourceFileRecord) float64
	FileIssues  func(*model.SourceFileRecord) int
	FileErrors  func(*model.SourceFileRecord) int
	SymbolScore func(model.SymbolRecord) float64
	SymbolIssue func(model.SymbolRecord) bool
	Variant     Variant
	// PerMetric enables the per-metric-name and per-category rollups.
	PerMetric bool
}

// ProfileFor returns the extractors for a concrete variant.
func ProfileFor(variant Variant, threshold float64) Profile {
	if variant == VariantQuality {
		return qualityProfile()
	}

	return complexityProfile(threshold)
}

func complexityProfile(threshold float64) Profile {
	symbolIssue := func(s model.SymbolRecord) bool {
		return s.ComplexityScore() >= threshold
	}

	return Profile{
		Variant:   VariantComplexity,
		FileScore: (*model.SourceFileRecord).ComplexityScore,
		FileIssues: func(r *model.SourceFileRecord) int {
			var issues int

			if r.ComplexityScore() >= threshold {
				issues++
			}

			for _, sym := range r.Symbols {
				if symbolIssue(sym) {
					issues++
				}
			}

			return issues
		},
		FileErrors:  func(*model.SourceFileRecord) int { return 0 },
		SymbolScore: model.SymbolRecord.ComplexityScore,
		SymbolIssue: symbolIssue,
	}
}

func qualityProfile() Profile {
	return Profile{
		Variant:    VariantQuality,
		PerMetric:  true,
		FileScore:  ViolationRatio,
		FileIssues: (*model.SourceFileRecord).IssueCount,
		FileErrors: func(r *model.SourceFileRecord) int {
			return r.SeverityCount(model.SeverityError)
		},
		SymbolScore: func(s model.SymbolRecord) float64 {
			if s.CyclomaticComplexity != nil {
				return float64(*s.CyclomaticComplexity)
			}

			return float64(s.IssueCount())
		},
		SymbolIssue: func(s model.SymbolRecord) bool {
			return s.IssueCount() > 0
		},
	}
}

// ViolationRatio is issues over metrics for the file and its symbols, or 0
// when the file carries no metrics.
func ViolationRatio(r *model.SourceFileRecord) float64 {
	total := len(r.AllMetrics())
	if total == 0 {
		return 0
	}

	return float64(r.IssueCount()) / float64(total)
}
