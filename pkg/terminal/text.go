package terminal

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis is appended to truncated strings.
const Ellipsis = "..."

// EllipsisLen is the length of the ellipsis string.
const EllipsisLen = 3

// TruncateWithEllipsis truncates s to maxWidth runes, adding "..." if truncated.
// If maxWidth is less than EllipsisLen, returns truncated ellipsis.
func TruncateWithEllipsis(s string, maxWidth int) string {
	if utf8.RuneCountInString(s) <= maxWidth {
		return s
	}

	if maxWidth <= EllipsisLen {
		return strings.Repeat(".", max(maxWidth, 0))
	}

	runes := []rune(s)

	return string(runes[:maxWidth-EllipsisLen]) + Ellipsis
}

// TruncateLeft keeps the tail of s, which is the informative end of a path.
func TruncateLeft(s string, maxWidth int) string {
	runes := []rune(s)
	if len(runes) <= maxWidth {
		return s
	}

	if maxWidth <= EllipsisLen {
		return strings.Repeat(".", max(maxWidth, 0))
	}

	return Ellipsis + string(runes[len(runes)-maxWidth+EllipsisLen:])
}

// PadRight pads s with spaces on the right to reach width.
// If s is already longer than width, returns s unchanged.
func PadRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}

	return s + strings.Repeat(" ", width-n)
}
