// Package reduce folds parsed documents into accumulated mailbox state:
// declared items grouped by section, pairwise votes grouped by attribute,
// and mentioned addresses. Commands are interpreted sequentially with
// per-document context, so a section or attribute declaration governs the
// commands that follow it within the same email.
package reduce

import (
	"fmt"
	"time"

	"github.com/sortersocial/sorter/core/dsl"
	"github.com/sortersocial/sorter/core/errors"
	"github.com/sortersocial/sorter/core/vote"
)

// ItemRecord is a declared item with its accumulated metadata.
type ItemRecord struct {
	Title     string              `json:"title"`
	Body      *dsl.Body           `json:"body,omitempty"`
	Sections  map[string]struct{} `json:"-"`
	CreatedBy string              `json:"created_by,omitempty"`
	CreatedAt time.Time           `json:"created_at,omitempty"`
}

// InSection reports whether the item is tagged with the given section.
func (r *ItemRecord) InSection(section string) bool {
	_, ok := r.Sections[section]
	return ok
}

// VoteRecord is a recorded pairwise vote with its context.
type VoteRecord struct {
	Vote        vote.Vote `json:"vote"`
	Attribute   string    `json:"attribute"`
	Explanation string    `json:"explanation,omitempty"`
	Author      string    `json:"author,omitempty"`
	SourceID    string    `json:"source_id,omitempty"`
	CastAt      time.Time `json:"cast_at,omitempty"`
}

// State is the application state accumulated from processing emails.
type State struct {
	Items    map[string]*ItemRecord
	Votes    []VoteRecord
	Mentions []string
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Items: make(map[string]*ItemRecord)}
}

// Context identifies the email a document came from.
type Context struct {
	Author    string
	SourceID  string
	Timestamp time.Time
}

// Reducer folds documents into a State. It is not safe for concurrent use;
// callers serialize document processing, which matches the mailbox's
// arrival-order semantics.
type Reducer struct {
	state *State

	// Per-document context, reset on every ProcessDocument call.
	section   string
	attribute string
	ctx       Context
}

// NewReducer creates a reducer with empty state.
func NewReducer() *Reducer {
	return &Reducer{state: NewState()}
}

// State returns the accumulated state. The reducer retains ownership;
// callers must not mutate it while processing continues.
func (r *Reducer) State() *State {
	return r.state
}

// ProcessDocument folds one parsed document into the state. A semantic
// error aborts the document but leaves previously applied commands in
// place, mirroring the sequential reading of an email.
func (r *Reducer) ProcessDocument(doc *dsl.Document, ctx Context) error {
	r.section = ""
	r.attribute = ""
	r.ctx = ctx

	for _, cmd := range doc.Commands {
		var err error
		switch cmd.Kind {
		case dsl.KindSection:
			r.section = cmd.Name
		case dsl.KindItem:
			err = r.processItem(cmd)
		case dsl.KindKeyValue:
			r.processAttribute(cmd.Name)
		case dsl.KindMention:
			r.processMention(cmd.Name)
		case dsl.KindDirective:
			// Directives address the mailbox service itself; the dispatcher
			// interprets them from the Document directly.
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// processItem handles an item line, which is either a vote expression or an
// item declaration.
func (r *Reducer) processItem(cmd dsl.Command) error {
	if v, ok := vote.Parse(cmd.Name); ok {
		return r.processVote(cmd, v)
	}
	return r.declareItem(cmd)
}

func (r *Reducer) declareItem(cmd dsl.Command) error {
	if r.section == "" {
		return errors.NewValidation("item", fmt.Sprintf(
			"item %q submitted without section context; declare #section before submitting items", cmd.Name))
	}

	if existing, ok := r.state.Items[cmd.Name]; ok {
		if cmd.Body != nil && existing.Body != nil {
			return errors.NewValidation("item", fmt.Sprintf(
				"item %q already exists with a body; bodies are immutable", cmd.Name))
		}
		// Cross-tagging: an existing item re-declared under a new section
		// joins that section.
		existing.Sections[r.section] = struct{}{}
		if existing.Body == nil && cmd.Body != nil {
			existing.Body = cmd.Body
		}
		return nil
	}

	r.state.Items[cmd.Name] = &ItemRecord{
		Title:     cmd.Name,
		Body:      cmd.Body,
		Sections:  map[string]struct{}{r.section: {}},
		CreatedBy: r.ctx.Author,
		CreatedAt: r.ctx.Timestamp,
	}
	return nil
}

func (r *Reducer) processVote(cmd dsl.Command, v *vote.Vote) error {
	if r.attribute == "" {
		return errors.NewValidation("vote",
			"cannot vote without attribute context; declare an attribute (e.g. :impact) before voting")
	}
	if _, ok := r.state.Items[v.Left]; !ok {
		return errors.NewNotFound("item", v.Left)
	}
	if _, ok := r.state.Items[v.Right]; !ok {
		return errors.NewNotFound("item", v.Right)
	}
	// A zero half would create arcs the ranking random walk can never
	// leave, so reject it up front.
	if v.RatioLeft == 0 || v.RatioRight == 0 {
		return errors.NewValidation("ratio", fmt.Sprintf(
			"vote ratio cannot contain 0 (%d:%d); use small numbers like 1:10 instead",
			v.RatioLeft, v.RatioRight))
	}

	rec := VoteRecord{
		Vote:      *v,
		Attribute: r.attribute,
		Author:    r.ctx.Author,
		SourceID:  r.ctx.SourceID,
		CastAt:    r.ctx.Timestamp,
	}
	if cmd.Body != nil {
		rec.Explanation = cmd.Body.RawText
	}
	r.state.Votes = append(r.state.Votes, rec)
	return nil
}

// processAttribute handles a keyvalue line. A line may carry several
// attribute words; the last one becomes the active voting context.
func (r *Reducer) processAttribute(name string) {
	for _, field := range splitFields(name) {
		r.attribute = field
	}
}

func (r *Reducer) processMention(name string) {
	for _, seen := range r.state.Mentions {
		if seen == name {
			return
		}
	}
	r.state.Mentions = append(r.state.Mentions, name)
}

// ItemsBySection returns items tagged with the section. Order is
// unspecified; callers sort as needed.
func (r *Reducer) ItemsBySection(section string) []*ItemRecord {
	var items []*ItemRecord
	for _, item := range r.state.Items {
		if item.InSection(section) {
			items = append(items, item)
		}
	}
	return items
}

// VotesByAttribute returns all votes cast under the attribute.
func (r *Reducer) VotesByAttribute(attribute string) []VoteRecord {
	var votes []VoteRecord
	for _, v := range r.state.Votes {
		if v.Attribute == attribute {
			votes = append(votes, v)
		}
	}
	return votes
}

// Sourced pairs a document with its origin for batch reduction.
type Sourced struct {
	Doc *dsl.Document
	Ctx Context
}

// ReduceAll folds documents in order, collecting semantic errors instead of
// aborting the replay: one bad email must not stop the mailbox from
// rebuilding its state.
func ReduceAll(docs []Sourced) (*State, []error) {
	r := NewReducer()
	var errs []error
	for _, d := range docs {
		if err := r.ProcessDocument(d.Doc, d.Ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return r.state, errs
}

// splitFields splits an attribute line into attribute words, stripping any
// extra leading colons from forms like ":difficulty :benefit".
func splitFields(s string) []string {
	var fields []string
	start := -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != ' ' && s[i] != '\t' && s[i] != ':' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			fields = append(fields, s[start:i])
			start = -1
		}
	}
	return fields
}
