package reduce

import (
	"strings"
	"testing"

	"github.com/sortersocial/sorter/core/dsl"
	"github.com/sortersocial/sorter/core/errors"
)

func parseDoc(t *testing.T, lines ...string) *dsl.Document {
	t.Helper()
	doc, err := dsl.Parse(strings.Join(lines, "\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return doc
}

// TestReduceItemsAndSections tests item declaration under section context.
func TestReduceItemsAndSections(t *testing.T) {
	r := NewReducer()
	doc := parseDoc(t,
		"#ideas",
		"-task1 { first idea }",
		"-task2",
	)

	if err := r.ProcessDocument(doc, Context{Author: "alice@example.com"}); err != nil {
		t.Fatalf("reduce failed: %v", err)
	}

	state := r.State()
	if len(state.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(state.Items))
	}

	task1 := state.Items["task1"]
	if task1 == nil {
		t.Fatal("task1 missing")
	}
	if !task1.InSection("ideas") {
		t.Error("task1 should be in section ideas")
	}
	if task1.Body == nil || task1.Body.RawText != "first idea" {
		t.Errorf("task1 body = %+v, want %q", task1.Body, "first idea")
	}
	if task1.CreatedBy != "alice@example.com" {
		t.Errorf("created_by = %q, want alice@example.com", task1.CreatedBy)
	}
}

// TestReduceItemWithoutSection tests the section-context requirement.
func TestReduceItemWithoutSection(t *testing.T) {
	r := NewReducer()
	doc := parseDoc(t, "-orphan")

	err := r.ProcessDocument(doc, Context{})
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

// TestReduceCrossTagging tests that re-declaring an item under another
// section tags it there, while a second body is rejected.
func TestReduceCrossTagging(t *testing.T) {
	r := NewReducer()

	if err := r.ProcessDocument(parseDoc(t, "#ideas", "-task1 { body }"), Context{}); err != nil {
		t.Fatalf("first reduce failed: %v", err)
	}
	if err := r.ProcessDocument(parseDoc(t, "#backlog", "-task1"), Context{}); err != nil {
		t.Fatalf("cross-tag reduce failed: %v", err)
	}

	task1 := r.State().Items["task1"]
	if !task1.InSection("ideas") || !task1.InSection("backlog") {
		t.Errorf("task1 sections = %v, want both ideas and backlog", task1.Sections)
	}

	err := r.ProcessDocument(parseDoc(t, "#other", "-task1 { new body }"), Context{})
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput (bodies are immutable)", err)
	}
}

// TestReduceVotes tests vote recording under attribute context.
func TestReduceVotes(t *testing.T) {
	r := NewReducer()
	doc := parseDoc(t,
		"#ideas",
		"-task1",
		"-task2",
		":impact",
		"-task1 10:1 task2 { much higher leverage }",
	)

	if err := r.ProcessDocument(doc, Context{Author: "bob@example.com", SourceID: "msg-1"}); err != nil {
		t.Fatalf("reduce failed: %v", err)
	}

	votes := r.VotesByAttribute("impact")
	if len(votes) != 1 {
		t.Fatalf("got %d votes, want 1", len(votes))
	}
	v := votes[0]
	if v.Vote.Left != "task1" || v.Vote.Right != "task2" {
		t.Errorf("vote = %+v, want task1 vs task2", v.Vote)
	}
	if v.Vote.RatioLeft != 10 || v.Vote.RatioRight != 1 {
		t.Errorf("ratio = %d:%d, want 10:1", v.Vote.RatioLeft, v.Vote.RatioRight)
	}
	if v.Explanation != "much higher leverage" {
		t.Errorf("explanation = %q", v.Explanation)
	}
	if v.SourceID != "msg-1" {
		t.Errorf("source = %q, want msg-1", v.SourceID)
	}
}

// TestReduceVoteValidation tests the semantic vote rules.
func TestReduceVoteValidation(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		sentinel error
	}{
		{
			"no attribute context",
			[]string{"#ideas", "-a", "-b", "-a 2:1 b"},
			errors.ErrInvalidInput,
		},
		{
			"unknown left item",
			[]string{"#ideas", "-b", ":impact", "-ghost 2:1 b"},
			errors.ErrNotFound,
		},
		{
			"unknown right item",
			[]string{"#ideas", "-a", ":impact", "-a 2:1 ghost"},
			errors.ErrNotFound,
		},
		{
			"zero ratio half",
			[]string{"#ideas", "-a", "-b", ":impact", "-a > b"},
			errors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReducer()
			err := r.ProcessDocument(parseDoc(t, tt.lines...), Context{})
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

// TestReduceAttributeLastWins tests that the last attribute on a keyvalue
// line becomes the voting context.
func TestReduceAttributeLastWins(t *testing.T) {
	r := NewReducer()
	doc := parseDoc(t,
		"#ideas",
		"-a",
		"-b",
		":difficulty :benefit",
		"-a 2:1 b",
	)
	if err := r.ProcessDocument(doc, Context{}); err != nil {
		t.Fatalf("reduce failed: %v", err)
	}
	if got := r.State().Votes[0].Attribute; got != "benefit" {
		t.Errorf("attribute = %q, want benefit", got)
	}
}

// TestReduceContextResetsPerDocument tests that section and attribute
// context do not leak across emails.
func TestReduceContextResetsPerDocument(t *testing.T) {
	r := NewReducer()
	if err := r.ProcessDocument(parseDoc(t, "#ideas", "-a", "-b", ":impact", "-a 2:1 b"), Context{}); err != nil {
		t.Fatalf("first reduce failed: %v", err)
	}

	// Second email votes without redeclaring :impact; context must be gone.
	err := r.ProcessDocument(parseDoc(t, "-a 3:1 b"), Context{})
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

// TestReduceMentions tests mention deduplication.
func TestReduceMentions(t *testing.T) {
	r := NewReducer()
	doc := parseDoc(t, "@alice", "@bob", "@alice")
	if err := r.ProcessDocument(doc, Context{}); err != nil {
		t.Fatalf("reduce failed: %v", err)
	}
	got := r.State().Mentions
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("mentions = %v, want [alice bob]", got)
	}
}

// TestReduceAll tests that batch reduction collects errors without
// aborting the replay.
func TestReduceAll(t *testing.T) {
	docs := []Sourced{
		{Doc: parseDoc(t, "#ideas", "-a", "-b"), Ctx: Context{SourceID: "m1"}},
		{Doc: parseDoc(t, "-orphan"), Ctx: Context{SourceID: "m2"}},
		{Doc: parseDoc(t, "#ideas", "-c"), Ctx: Context{SourceID: "m3"}},
	}

	state, errs := ReduceAll(docs)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
	}
	if len(state.Items) != 3 {
		t.Errorf("got %d items, want 3 (replay continues past bad email)", len(state.Items))
	}
}
