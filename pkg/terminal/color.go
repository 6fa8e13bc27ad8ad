package terminal

import "github.com/fatih/color"

// Color is a semantic output color.
type Color int

// Color constants.
const (
	ColorNone Color = iota
	ColorGreen
	ColorYellow
	ColorRed
	ColorBlue
	ColorCyan
	ColorGray
)

var colorAttributes = map[Color]color.Attribute{
	ColorGreen:  color.FgGreen,
	ColorYellow: color.FgYellow,
	ColorRed:    color.FgRed,
	ColorBlue:   color.FgBlue,
	ColorCyan:   color.FgCyan,
	ColorGray:   color.FgHiBlack,
}

// Colorize applies color to text. If NoColor is true, returns text unchanged.
func (c Config) Colorize(text string, col Color) string {
	attr, ok := colorAttributes[col]
	if c.NoColor || !ok {
		return text
	}

	painter := color.New(attr)
	painter.EnableColor()

	return painter.Sprint(text)
}

// Bold renders text in bold unless color is disabled.
func (c Config) Bold(text string) string {
	if c.NoColor {
		return text
	}

	painter := color.New(color.Bold)
	painter.EnableColor()

	return painter.Sprint(text)
}

// ColorForRisk colors a score where higher is worse: red at or above
// threshold, yellow from half the threshold, green below.
func ColorForRisk(score, threshold float64) Color {
	switch {
	case score >= threshold:
		return ColorRed
	case score >= threshold/2:
		return ColorYellow
	default:
		return ColorGreen
	}
}
