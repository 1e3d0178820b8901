// Package vote recognizes pairwise vote expressions embedded in item
// command names, such as "task1 10:1 task2" or "task1 > task2".
package vote

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Vote is one pairwise comparison between two declared items. The ratio
// reads left-to-right: RatioLeft:RatioRight is how strongly Left is
// preferred over Right.
type Vote struct {
	Left       string `json:"left"`
	Right      string `json:"right"`
	RatioLeft  int    `json:"ratio_left"`
	RatioRight int    `json:"ratio_right"`
}

// voteGrammar is the participle grammar for vote expressions.
// Examples: "a 10:1 b", "a 3>1 b", "a 1<10 b", "a 5=5 b", "a > b", "a < b"
//
//nolint:govet // participle grammar tags are not standard struct tags
type voteGrammar struct {
	Left   string    `parser:"@Ident"`
	Ratio  *ratioCmp `parser:"( @@"`
	Simple string    `parser:"| @Cmp )"`
	Right  string    `parser:"@Ident"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type ratioCmp struct {
	LeftNum  string `parser:"@Int"`
	Op       string `parser:"@Cmp"`
	RightNum string `parser:"@Int"`
}

// voteLexer tokenizes vote expressions. Int must precede Ident so numeric
// ratio halves are not swallowed by item names.
var voteLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_-]*`},
	{Name: "Cmp", Pattern: `[:<>=]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var voteParser = participle.MustBuild[voteGrammar](
	participle.Lexer(voteLexer),
	participle.Elide("Whitespace"),
)

// Parse recognizes a vote expression in an item name. It returns ok=false
// for plain item names; item names are free-form, so a failed match is not
// an error.
func Parse(name string) (*Vote, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}

	parsed, err := voteParser.ParseString("", name)
	if err != nil {
		return nil, false
	}

	v := &Vote{Left: parsed.Left, Right: parsed.Right}

	if parsed.Ratio == nil {
		// Bare comparison: infinitely better or worse, represented with a
		// zero half. The reducer rejects zero halves for ranked votes.
		switch parsed.Simple {
		case ">":
			v.RatioLeft, v.RatioRight = 1, 0
		case "<":
			v.RatioLeft, v.RatioRight = 0, 1
		default:
			return nil, false
		}
		return v, true
	}

	left, err := strconv.Atoi(parsed.Ratio.LeftNum)
	if err != nil {
		return nil, false
	}
	right, err := strconv.Atoi(parsed.Ratio.RightNum)
	if err != nil {
		return nil, false
	}

	switch parsed.Ratio.Op {
	case ":", ">", "=":
		v.RatioLeft, v.RatioRight = left, right
	case "<":
		// a 1<10 b means b is preferred, so the ratio swaps.
		v.RatioLeft, v.RatioRight = right, left
	default:
		return nil, false
	}
	return v, true
}

// String renders the vote in canonical ratio form.
func (v *Vote) String() string {
	return v.Left + " " + strconv.Itoa(v.RatioLeft) + ":" + strconv.Itoa(v.RatioRight) + " " + v.Right
}
