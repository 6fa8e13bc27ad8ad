package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Progress bar characters.
const (
	ProgressFilled = "█"
	ProgressEmpty  = "░"
)

// PercentMultiplier converts 0-1 to 0-100.
const PercentMultiplier = 100

// DefaultBarWidth is the width of distribution and progress bars.
const DefaultBarWidth = 50

// DrawProgressBar draws a progress bar of the given width.
// Value is clamped to [0, 1] range.
// Example: DrawProgressBar(0.7, 10) returns "███████░░░".
func DrawProgressBar(value float64, width int) string {
	value = min(max(value, 0), 1)

	filled := int(value * float64(width))
	empty := width - filled

	return strings.Repeat(ProgressFilled, filled) + strings.Repeat(ProgressEmpty, empty)
}

// DrawPercentBar draws a labeled percentage bar.
// Example: "0.0-0.2  ████████████████░░░░  80.0%  (4)".
func DrawPercentBar(label string, fraction float64, count, labelWidth, barWidth int) string {
	paddedLabel := PadRight(label, labelWidth)
	bar := DrawProgressBar(fraction, barWidth)

	return fmt.Sprintf("%s %s %5.1f%%  (%d)", paddedLabel, bar, fraction*PercentMultiplier, count)
}

// ProgressLine renders batch progress as one line rewritten with a carriage return.
type ProgressLine struct {
	w        io.Writer
	mu       sync.Mutex
	barWidth int
	started  bool
}

// NewProgressLine creates a progress line writing to w. A non-positive
// barWidth hides the bar.
func NewProgressLine(w io.Writer, barWidth int) *ProgressLine {
	return &ProgressLine{w: w, barWidth: barWidth}
}

// Advance redraws the line for current of total files.
func (p *ProgressLine) Advance(current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var fraction float64
	if total > 0 {
		fraction = float64(current) / float64(total)
	}

	line := fmt.Sprintf("\r⏳ Processing: %.1f%% (%d/%d)", fraction*PercentMultiplier, current, total)
	if p.barWidth > 0 {
		line += " " + DrawProgressBar(fraction, p.barWidth)
	}

	fmt.Fprint(p.w, line)

	p.started = true
}

// Finish terminates the line if anything was drawn.
func (p *ProgressLine) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		fmt.Fprintln(p.w)

		p.started = false
	}
}
