package dsl

import (
	"errors"
	"fmt"
)

// Sentinel errors for the scan/parse failure taxonomy. Callers match these
// with errors.Is; the typed errors below add positional context.
var (
	// ErrUnterminatedLiteral indicates input ended inside a string or block comment.
	ErrUnterminatedLiteral = errors.New("unterminated literal")
	// ErrUnterminatedRawBlock indicates input ended inside a {{ ... }} block.
	ErrUnterminatedRawBlock = errors.New("unterminated raw block")
	// ErrUnexpectedLine indicates a kept line matched no command production.
	ErrUnexpectedLine = errors.New("unexpected line")
	// ErrUnclosedBody indicates a body delimiter was opened but never closed.
	ErrUnclosedBody = errors.New("unclosed body")
)

// ScanError reports a failure of the character-level scanner. It carries the
// line on which input ended and the state the scanner was stuck in.
type ScanError struct {
	Line  int   // 1-based line number where input ended
	State State // scanner state at end of input
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan failed at line %d: input ended in %s", e.Line, e.State)
}

func (e *ScanError) Unwrap() error {
	if e.State == StateRawBlock {
		return ErrUnterminatedRawBlock
	}
	return ErrUnterminatedLiteral
}

// ParseError reports a grammar-level failure with enough positional context
// for the caller to compose an actionable message back to the sender.
type ParseError struct {
	Line    int    // 1-based line number of the offending or opening line
	Snippet string // offending line content, if applicable
	Err     error  // ErrUnexpectedLine or ErrUnclosedBody
}

func (e *ParseError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("parse failed at line %d: %v: %q", e.Line, e.Err, e.Snippet)
	}
	return fmt.Sprintf("parse failed at line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// unexpectedLine builds a ParseError for a kept line that matches no
// production. Long lines are clipped so error messages stay readable.
func unexpectedLine(line int, content string) *ParseError {
	const maxSnippet = 80
	if len(content) > maxSnippet {
		content = content[:maxSnippet] + "..."
	}
	return &ParseError{Line: line, Snippet: content, Err: ErrUnexpectedLine}
}
