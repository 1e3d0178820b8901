package dsl

import (
	"errors"
	"testing"
)

// TestScanLineStructuralDepth tests that depth is only advanced by
// NORMAL-state braces.
func TestScanLineStructuralDepth(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		depth int
	}{
		{"balanced single braces", []string{"-task { body }"}, 0},
		{"open brace", []string{"-task {"}, 1},
		{"nested braces", []string{"-task {", "inner { deep }", "}"}, 0},
		{"stray close floored at zero", []string{"} } }"}, 0},
		{"brace in string", []string{`say "{" nothing opened`}, 0},
		{"brace in single quoted string", []string{`say '{' nothing opened`}, 0},
		{"brace in line comment", []string{"// comment with {"}, 0},
		{"brace in block comment", []string{"/* { { { */"}, 0},
		{"raw block counts once", []string{"-x {{", "{ { {", "}}"}, 0},
		{"unbalanced close in raw block ignored", []string{"-x {{", "} } }", "}}"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := NewScanner()
			for _, line := range tt.lines {
				sc.ScanLine(line)
			}
			if got := sc.Snapshot().Depth; got != tt.depth {
				t.Errorf("depth = %d, want %d", got, tt.depth)
			}
		})
	}
}

// TestScanLineStates tests the lexical context transitions.
func TestScanLineStates(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		state State
	}{
		{"plain text", []string{"hello"}, StateNormal},
		{"open string carries over", []string{`say "unclosed`}, StateString},
		{"closed string", []string{`say "closed"`}, StateNormal},
		{"escaped quote stays in string", []string{`say "esc\"`}, StateString},
		{"line comment ends at EOL", []string{"// comment"}, StateNormal},
		{"block comment carries over", []string{"/* open"}, StateBlockComment},
		{"block comment closed", []string{"/* open", "still */ done"}, StateNormal},
		{"raw block carries over", []string{"-x {{"}, StateRawBlock},
		{"raw block closed", []string{"-x {{", "}}"}, StateNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := NewScanner()
			for _, line := range tt.lines {
				sc.ScanLine(line)
			}
			if got := sc.Snapshot().State; got != tt.state {
				t.Errorf("state = %v, want %v", got, tt.state)
			}
		})
	}
}

// TestRawBlockClosureIsLiteral tests the key correction over the legacy
// design: raw block closure is keyed on the literal }} marker, so unbalanced
// braces inside the block never affect closure.
func TestRawBlockClosureIsLiteral(t *testing.T) {
	sc := NewScanner()
	sc.ScanLine("-snippet {{")
	sc.ScanLine(`  printf("{test");`) // unbalanced open brace inside a string
	tr := sc.ScanLine("}}")

	if tr.CloseOffset != 0 || tr.CloseLen != 2 {
		t.Errorf("close = (%d, %d), want (0, 2)", tr.CloseOffset, tr.CloseLen)
	}
	snap := sc.Snapshot()
	if snap.State != StateNormal || snap.Depth != 0 {
		t.Errorf("after close: state=%v depth=%d, want normal depth 0", snap.State, snap.Depth)
	}
}

// TestScanLineOpenClose tests delimiter offset reporting on a single line.
func TestScanLineOpenClose(t *testing.T) {
	sc := NewScanner()
	tr := sc.ScanLine("-task1 { description }")

	if tr.OpenOffset != 7 {
		t.Errorf("OpenOffset = %d, want 7", tr.OpenOffset)
	}
	if tr.OpenRaw {
		t.Error("OpenRaw should be false for a single brace")
	}
	if tr.CloseOffset != 21 {
		t.Errorf("CloseOffset = %d, want 21", tr.CloseOffset)
	}
	if tr.CloseLen != 1 {
		t.Errorf("CloseLen = %d, want 1", tr.CloseLen)
	}
}

// TestScannerErr tests end-of-input validation per state.
func TestScannerErr(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		wantErr error
	}{
		{"normal end", []string{"-task"}, nil},
		{"ends in string", []string{`say "unclosed`}, ErrUnterminatedLiteral},
		{"ends in block comment", []string{"/* open"}, ErrUnterminatedLiteral},
		{"ends in raw block", []string{"-x {{", "text"}, ErrUnterminatedRawBlock},
		{"line comment at EOF tolerated", []string{"// trailing"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := NewScanner()
			for _, line := range tt.lines {
				sc.ScanLine(line)
			}
			err := sc.Err(len(tt.lines))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			var scanErr *ScanError
			if !errors.As(err, &scanErr) {
				t.Fatalf("error type = %T, want *ScanError", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestSplitLines tests physical line splitting.
func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", nil},
		{"single line no newline", "abc", []string{"abc"}},
		{"trailing newline", "abc\n", []string{"abc"}},
		{"blank interior line", "a\n\nb", []string{"a", "", "b"}},
		{"crlf normalized", "a\r\nb\r\n", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitLines(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d lines %q, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
