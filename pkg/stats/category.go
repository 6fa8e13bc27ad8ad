package stats

import "strings"

// Metric categories.
const (
	CategorySize      = "size"
	CategoryStructure = "structure"
	CategoryCoupling  = "coupling"
	CategoryOther     = "other"
)

var categoryMarkers = []struct {
	category string
	markers  []string
}{
	{category: CategorySize, markers: []string{"file", "loc", "comment", "blank"}},
	{category: CategoryStructure, markers: []string{"function", "class", "interface", "type"}},
	{category: CategoryCoupling, markers: []string{"fan", "import", "coupling"}},
}

// Category derives a metric's category from substrings of its name. The first
// matching category wins.
func Category(metricName string) string {
	name := strings.ToLower(metricName)

	for _, entry := range categoryMarkers {
		for _, marker := range entry.markers {
			if strings.Contains(name, marker) {
				return entry.category
			}
		}
	}

	return CategoryOther
}
