package dsl

import "strings"

// Line is one classified physical line of input.
type Line struct {
	// Number is the 1-based line number.
	Number int
	// Text is the line content without its newline.
	Text string
	// Kept reports whether the line is directive/body content; dropped
	// lines are noise (greetings, signatures, quoted replies).
	Kept bool
	// Entry is the scanner state on entry to the line.
	Entry Snapshot
}

// keepLine decides whether a line is kept, given the scanner state on entry
// to the line. A line is kept when it is itself a directive line, or when it
// lies inside an open body span: structural depth above zero, or a raw block
// in progress. Blank lines are only kept inside an open body.
func keepLine(line string, entry Snapshot) bool {
	if entry.State == StateRawBlock || entry.Depth > 0 {
		return true
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	_, ok := markerKinds[trimmed[0]]
	return ok
}

// Classify runs the scanner over the whole input and labels every physical
// line as kept or noise. It fails with a ScanError when input ends inside a
// string, block comment, or raw block.
func Classify(raw string) ([]Line, error) {
	sc := NewScanner()
	src := splitLines(raw)
	lines := make([]Line, 0, len(src))
	for i, text := range src {
		tr := sc.ScanLine(text)
		lines = append(lines, Line{
			Number: i + 1,
			Text:   text,
			Kept:   keepLine(text, tr.Entry),
			Entry:  tr.Entry,
		})
	}
	if err := sc.Err(len(src)); err != nil {
		return nil, err
	}
	return lines, nil
}

// Filter returns the kept lines joined back into text. Filtering is
// idempotent: filtering output that already contains only directive and
// body lines returns it unchanged.
func Filter(raw string) (string, error) {
	lines, err := Classify(raw)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, ln := range lines {
		if !ln.Kept {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(ln.Text)
	}
	return b.String(), nil
}
