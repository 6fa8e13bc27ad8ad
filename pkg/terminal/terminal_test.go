package terminal //nolint:testpackage // testing internal implementation.

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectWidth(t *testing.T) {
	tests := []struct {
		env  string
		want int
	}{
		{"", DefaultWidth},
		{"100", 100},
		{"invalid", DefaultWidth},
		{"-5", DefaultWidth},
		{"20", MinWidth},
		{"400", MaxWidth},
	}

	for _, tt := range tests {
		t.Run("COLUMNS="+tt.env, func(t *testing.T) {
			t.Setenv("COLUMNS", tt.env)

			assert.Equal(t, tt.want, DetectWidth())
		})
	}
}

func TestNewConfig_NoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	assert.True(t, NewConfig().NoColor)
}

func TestColorize(t *testing.T) {
	t.Parallel()

	colored := Config{}.Colorize("hot", ColorRed)
	assert.Equal(t, "\x1b[31mhot\x1b[0m", colored)

	assert.Equal(t, "hot", Config{NoColor: true}.Colorize("hot", ColorRed))
	assert.Equal(t, "plain", Config{}.Colorize("plain", ColorNone))
	assert.Equal(t, "b", Config{NoColor: true}.Bold("b"))
	assert.Contains(t, Config{}.Bold("b"), "\x1b[1m")
}

func TestColorForRisk(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ColorRed, ColorForRisk(0.9, 0.8))
	assert.Equal(t, ColorRed, ColorForRisk(0.8, 0.8))
	assert.Equal(t, ColorYellow, ColorForRisk(0.4, 0.8))
	assert.Equal(t, ColorGreen, ColorForRisk(0.1, 0.8))
}

func TestDrawProgressBar(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "███████░░░", DrawProgressBar(0.7, 10))
	assert.Equal(t, "░░░░░", DrawProgressBar(-1, 5))
	assert.Equal(t, "█████", DrawProgressBar(2, 5))
	assert.Empty(t, DrawProgressBar(0.5, 0))
}

func TestDrawPercentBar(t *testing.T) {
	t.Parallel()

	got := DrawPercentBar("0.8-1.0", 0.5, 1, 8, 4)
	assert.Equal(t, "0.8-1.0  ██░░  50.0%  (1)", got)
}

func TestProgressLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	p := NewProgressLine(&buf, 0)
	p.Finish()
	assert.Empty(t, buf.String(), "finish without progress draws nothing")

	p.Advance(1, 2)
	p.Advance(2, 2)
	p.Finish()

	assert.Equal(t, "\r⏳ Processing: 50.0% (1/2)\r⏳ Processing: 100.0% (2/2)\n", buf.String())
}

func TestProgressLine_WithBarAndZeroTotal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	p := NewProgressLine(&buf, 4)
	p.Advance(0, 0)

	assert.Equal(t, "\r⏳ Processing: 0.0% (0/0) ░░░░", buf.String())
}

func TestProgressLine_Concurrent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	p := NewProgressLine(&buf, 10)

	var wg sync.WaitGroup

	for i := range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			p.Advance(i+1, 20)
		}()
	}

	wg.Wait()
	p.Finish()

	assert.Equal(t, 20, strings.Count(buf.String(), "\r"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", TruncateWithEllipsis("short", 10))
	assert.Equal(t, "abcd...", TruncateWithEllipsis("abcdefghij", 7))
	assert.Equal(t, "..", TruncateWithEllipsis("abcdefghij", 2))
	assert.Equal(t, "...c/d.ts", TruncateLeft("src/a/b/c/d.ts", 9))
	assert.Equal(t, "d.ts", TruncateLeft("d.ts", 9))
	assert.Equal(t, "日本...", TruncateWithEllipsis("日本語のパス", 5))
}

func TestPadRight(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ab  ", PadRight("ab", 4))
	assert.Equal(t, "abcdef", PadRight("abcdef", 4))
}

func TestDrawHeader(t *testing.T) {
	t.Parallel()

	header := DrawHeader("STATS", "3 files", 20)
	lines := strings.Split(header, "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, "┃ STATS    3 files ┃", lines[1])
	assert.Equal(t, strings.Repeat(BoxHeavyHorizontal, 18), strings.Trim(lines[0], BoxHeavyTopLeft+BoxHeavyTopRight))

	narrow := DrawHeader("A LONG TITLE", "", 4)
	assert.Contains(t, narrow, "┃ A LONG TITLE")
}
