package vote

import "testing"

// TestParseVoteExpressions tests every comparison form.
func TestParseVoteExpressions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Vote
	}{
		{"ratio", "task1 10:1 task2", Vote{"task1", "task2", 10, 1}},
		{"greater with ratio", "task1 3>1 task2", Vote{"task1", "task2", 3, 1}},
		{"less swaps ratio", "task1 1<10 task2", Vote{"task1", "task2", 10, 1}},
		{"equal", "task1 5=5 task2", Vote{"task1", "task2", 5, 5}},
		{"simple greater", "task1 > task2", Vote{"task1", "task2", 1, 0}},
		{"simple less", "task1 < task2", Vote{"task1", "task2", 0, 1}},
		{"hyphenated names", "fix-login 2:1 dark-mode", Vote{"fix-login", "dark-mode", 2, 1}},
		{"extra whitespace", "  a  7:2  b  ", Vote{"a", "b", 7, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.in)
			if !ok {
				t.Fatalf("Parse(%q) did not match", tt.in)
			}
			if *got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.in, *got, tt.want)
			}
		})
	}
}

// TestParseNonVotes tests that plain item names are not mistaken for votes.
func TestParseNonVotes(t *testing.T) {
	for _, in := range []string{
		"",
		"task1",
		"fix-login-page",
		"task1 task2",
		"task1 10:1",
		"10:1 task2",
		"task1 : task2 extra",
	} {
		if v, ok := Parse(in); ok {
			t.Errorf("Parse(%q) = %+v, want no match", in, v)
		}
	}
}

// TestVoteString tests the canonical rendering.
func TestVoteString(t *testing.T) {
	v := Vote{Left: "a", Right: "b", RatioLeft: 10, RatioRight: 1}
	if got, want := v.String(), "a 10:1 b"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
