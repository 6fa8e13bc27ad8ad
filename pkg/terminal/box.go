package terminal

import (
	"strings"
	"unicode/utf8"
)

// Box drawing characters.
const (
	BoxHeavyHorizontal  = "━"
	BoxHeavyVertical    = "┃"
	BoxHeavyTopLeft     = "┏"
	BoxHeavyTopRight    = "┓"
	BoxHeavyBottomLeft  = "┗"
	BoxHeavyBottomRight = "┛"
)

// HeaderPadding is the space around header content.
const HeaderPadding = 1

// DrawHeader draws a heavy-bordered section header.
// ┏━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┓
// ┃ TITLE                     rightText ┃
// ┗━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┛
func DrawHeader(title, rightText string, width int) string {
	titleLen := utf8.RuneCountInString(title)
	rightLen := utf8.RuneCountInString(rightText)

	minRequired := titleLen + rightLen + 4 + (HeaderPadding * 2)
	width = max(width, minRequired)

	innerWidth := width - 2
	contentWidth := innerWidth - (HeaderPadding * 2)

	var content string
	if rightText == "" {
		content = PadRight(title, contentWidth)
	} else {
		gap := max(contentWidth-titleLen-rightLen, 1)
		content = title + strings.Repeat(" ", gap) + rightText
	}

	pad := strings.Repeat(" ", HeaderPadding)

	return BoxHeavyTopLeft + strings.Repeat(BoxHeavyHorizontal, innerWidth) + BoxHeavyTopRight + "\n" +
		BoxHeavyVertical + pad + content + pad + BoxHeavyVertical + "\n" +
		BoxHeavyBottomLeft + strings.Repeat(BoxHeavyHorizontal, innerWidth) + BoxHeavyBottomRight
}
