package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/scopestat/pkg/terminal"
)

// DiffStats counts the lines of a report diff.
type DiffStats struct {
	Added     int
	Removed   int
	Unchanged int
}

// Changed reports whether the two reports differ.
func (d DiffStats) Changed() bool {
	return d.Added > 0 || d.Removed > 0
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}

	return strings.Split(text, "\n")
}

// WriteDiff prints a line diff of two text reports, such as two runs'
// analysis-files.csv. Unchanged lines are omitted; removed lines are prefixed
// with "-" and added lines with "+".
func WriteDiff(w io.Writer, before, after string, term terminal.Config) (DiffStats, error) {
	dmp := diffmatchpatch.New()

	chars1, chars2, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(chars1, chars2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	out := bufio.NewWriter(w)

	var ds DiffStats

	for _, d := range diffs {
		lines := splitLines(d.Text)

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			ds.Unchanged += len(lines)
		case diffmatchpatch.DiffDelete:
			ds.Removed += len(lines)

			for _, line := range lines {
				fmt.Fprintln(out, term.Colorize("-"+line, terminal.ColorRed))
			}
		case diffmatchpatch.DiffInsert:
			ds.Added += len(lines)

			for _, line := range lines {
				fmt.Fprintln(out, term.Colorize("+"+line, terminal.ColorGreen))
			}
		}
	}

	fmt.Fprintf(out, "%d added, %d removed, %d unchanged\n", ds.Added, ds.Removed, ds.Unchanged)

	err := out.Flush()
	if err != nil {
		return ds, fmt.Errorf("write diff: %w", err)
	}

	return ds, nil
}
