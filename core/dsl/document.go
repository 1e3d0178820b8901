// Package dsl implements the two-stage recovery pipeline that turns a noisy
// email body into a structured Document of commands: a stateful scanner
// classifies raw text into structural and opaque regions, a noise classifier
// drops non-command lines, and a line-oriented grammar parser assembles the
// surviving lines into ordered commands.
package dsl

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the command production a line matched. The set is closed:
// every marker character maps to exactly one kind and the parser handles all
// of them exhaustively.
type Kind int

const (
	// KindSection is a section declaration: #ideas
	KindSection Kind = iota
	// KindItem is an item submission: -task1 { optional body }
	KindItem
	// KindKeyValue is an attribute declaration: :difficulty
	KindKeyValue
	// KindDirective is a mailbox directive: !rank
	KindDirective
	// KindMention is a user mention: @alice
	KindMention
)

// markerKinds maps a line's leading marker character to its command kind.
var markerKinds = map[byte]Kind{
	'#': KindSection,
	'-': KindItem,
	':': KindKeyValue,
	'!': KindDirective,
	'@': KindMention,
}

// String returns the wire vocabulary name for the kind.
func (k Kind) String() string {
	switch k {
	case KindSection:
		return "section"
	case KindItem:
		return "item"
	case KindKeyValue:
		return "keyvalue"
	case KindDirective:
		return "directive"
	case KindMention:
		return "mention"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Marker returns the marker character for the kind.
func (k Kind) Marker() byte {
	switch k {
	case KindSection:
		return '#'
	case KindItem:
		return '-'
	case KindKeyValue:
		return ':'
	case KindDirective:
		return '!'
	case KindMention:
		return '@'
	default:
		return 0
	}
}

// MarshalJSON encodes the kind as its vocabulary name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a vocabulary name back into a Kind.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "section":
		*k = KindSection
	case "item":
		*k = KindItem
	case "keyvalue":
		*k = KindKeyValue
	case "directive":
		*k = KindDirective
	case "mention":
		*k = KindMention
	default:
		return fmt.Errorf("unknown command kind %q", s)
	}
	return nil
}

// Body is the free-text payload attached to a command.
type Body struct {
	// RawText is the body content. For multi-line bodies it preserves the
	// original whitespace, line breaks, and embedded brace or quote
	// characters verbatim; inline bodies are trimmed of surrounding space.
	RawText string `json:"raw_text"`

	// IsRawBlock is true when the body was delimited by the double-brace
	// escape ({{ ... }}) rather than a single brace pair.
	IsRawBlock bool `json:"is_raw_block,omitempty"`
}

// Command is one parsed directive line, optionally with an attached body.
type Command struct {
	// Kind is the command production, keyed by the line's marker character.
	Kind Kind `json:"kind"`

	// Name is the text following the marker up to the opening brace or end
	// of line, with surrounding whitespace removed.
	Name string `json:"name"`

	// Line is the 1-based line number of the command in the raw input.
	Line int `json:"line"`

	// Body is the attached payload, if the command opened one.
	Body *Body `json:"body,omitempty"`
}

// Document is the ordered result of a parse. Command order equals
// first-appearance order in the input and is never rearranged here;
// deduplication and cross-command validation belong to downstream
// consumers.
type Document struct {
	Commands []Command `json:"commands"`
}

// Len returns the number of commands in the document.
func (d *Document) Len() int {
	return len(d.Commands)
}
