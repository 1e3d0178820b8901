package dsl

// State identifies the scanner's lexical context. Structural brace depth is
// only advanced while the scanner is in StateNormal; every other state
// treats braces as opaque text.
type State int

const (
	// StateNormal is the default context: braces are structural.
	StateNormal State = iota
	// StateString is the interior of a quoted string literal.
	StateString
	// StateLineComment is the interior of a // comment (ends at end of line).
	StateLineComment
	// StateBlockComment is the interior of a /* */ comment.
	StateBlockComment
	// StateRawBlock is the interior of a {{ ... }} raw block. Everything is
	// opaque until the literal closing }} marker; brace tallies inside the
	// block never affect closure.
	StateRawBlock
)

// String returns a short name for the state, used in error messages.
func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal text"
	case StateString:
		return "a string literal"
	case StateLineComment:
		return "a line comment"
	case StateBlockComment:
		return "a block comment"
	case StateRawBlock:
		return "a raw block"
	default:
		return "an unknown state"
	}
}

// Snapshot captures the automaton between two physical lines.
type Snapshot struct {
	// State is the lexical context.
	State State
	// Depth is the structural brace depth: the count of unmatched
	// NORMAL-state single braces, plus one per open raw block.
	Depth int
}

// LineTrace summarizes one physical line's trip through the scanner.
type LineTrace struct {
	// Entry is the automaton state before the line's first character.
	Entry Snapshot
	// Exit is the state after the line. Line comments are terminated by the
	// end of line, so Exit.State is never StateLineComment.
	Exit Snapshot

	// OpenOffset is the byte offset of the first delimiter that raised
	// structural depth from zero on this line ({ or {{), or -1.
	OpenOffset int
	// OpenRaw reports whether that opener was the double-brace escape.
	OpenRaw bool

	// CloseOffset is the byte offset of the first delimiter that returned
	// structural depth to zero on this line (} or the }} raw close), or -1.
	CloseOffset int
	// CloseLen is the delimiter length at CloseOffset: 1 for }, 2 for }}.
	CloseLen int
}

// Scanner is the stateful character automaton behind classification and
// body collection. A Scanner is created per parse call and never shared;
// the zero value is ready to use.
//
// Known limitation: the first }} unconditionally closes a raw block, so a
// raw block cannot itself contain the literal sequence }} (for example
// inside one of its own embedded string literals).
type Scanner struct {
	state State
	quote byte
	depth int
}

// NewScanner returns a scanner in the initial state.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Snapshot returns the current automaton state.
func (s *Scanner) Snapshot() Snapshot {
	return Snapshot{State: s.state, Depth: s.depth}
}

// ScanLine advances the automaton over one physical line (newline excluded)
// in a single left-to-right pass and reports what happened. State other than
// a line comment carries over to the next line.
func (s *Scanner) ScanLine(line string) LineTrace {
	tr := LineTrace{
		Entry:       s.Snapshot(),
		OpenOffset:  -1,
		CloseOffset: -1,
	}

	i := 0
	for i < len(line) {
		ch := line[i]
		var next byte
		if i+1 < len(line) {
			next = line[i+1]
		}

		switch s.state {
		case StateRawBlock:
			if ch == '}' && next == '}' {
				s.state = StateNormal
				if s.depth > 0 {
					s.depth--
				}
				if s.depth == 0 && tr.CloseOffset < 0 {
					tr.CloseOffset = i
					tr.CloseLen = 2
				}
				i += 2
				continue
			}
			i++

		case StateString:
			switch {
			case ch == '\\':
				// Escape: the next character is consumed verbatim.
				i += 2
			case ch == s.quote:
				s.state = StateNormal
				i++
			default:
				i++
			}

		case StateLineComment:
			i++

		case StateBlockComment:
			if ch == '*' && next == '/' {
				s.state = StateNormal
				i += 2
				continue
			}
			i++

		default: // StateNormal
			switch {
			case ch == '{' && next == '{':
				if s.depth == 0 && tr.OpenOffset < 0 {
					tr.OpenOffset = i
					tr.OpenRaw = true
				}
				s.depth++
				s.state = StateRawBlock
				i += 2
			case ch == '{':
				if s.depth == 0 && tr.OpenOffset < 0 {
					tr.OpenOffset = i
				}
				s.depth++
				i++
			case ch == '}':
				// Floored at zero: a stray close outside any body is inert.
				if s.depth > 0 {
					s.depth--
					if s.depth == 0 && tr.CloseOffset < 0 {
						tr.CloseOffset = i
						tr.CloseLen = 1
					}
				}
				i++
			case ch == '"' || ch == '\'':
				s.state = StateString
				s.quote = ch
				i++
			case ch == '/' && next == '/':
				s.state = StateLineComment
				i += 2
			case ch == '/' && next == '*':
				s.state = StateBlockComment
				i += 2
			default:
				i++
			}
		}
	}

	// A line comment terminates at end of line.
	if s.state == StateLineComment {
		s.state = StateNormal
	}

	tr.Exit = s.Snapshot()
	return tr
}

// Err returns the scan failure for the current end-of-input state, or nil
// when ending here is valid. line is the 1-based number of the last line.
func (s *Scanner) Err(line int) error {
	if s.state == StateNormal {
		return nil
	}
	return &ScanError{Line: line, State: s.state}
}

// splitLines breaks raw input into physical lines. A trailing newline does
// not produce a final empty line, and carriage returns from CRLF input are
// removed so the automaton only ever sees \n line endings.
func splitLines(raw string) []string {
	if raw == "" {
		return nil
	}
	if raw[len(raw)-1] == '\n' {
		raw = raw[:len(raw)-1]
	}
	lines := make([]string, 0, 16)
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == '\n' {
			line := raw[start:i]
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			lines = append(lines, line)
			start = i + 1
		}
	}
	return lines
}
