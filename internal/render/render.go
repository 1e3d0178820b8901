// Package render composes the plain-text reply bodies sent back to
// voters: acknowledgements of what a message changed, ranking tables,
// and error reports for messages that failed to parse.
package render

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sortersocial/sorter/core/dsl"
	"github.com/sortersocial/sorter/core/rank"
	"github.com/sortersocial/sorter/core/reduce"
)

// Summary describes what a processed message contributed.
type Summary struct {
	Sections []string
	Items    int
	Votes    int
	Mentions []string
}

// Summarize builds a Summary from a parsed document. votes is the number
// of item lines the reducer recognized as votes rather than declarations.
func Summarize(doc *dsl.Document, votes int) Summary {
	s := Summary{Votes: votes}
	items := 0
	seen := make(map[string]bool)
	for _, cmd := range doc.Commands {
		switch cmd.Kind {
		case dsl.KindSection:
			if !seen["#"+cmd.Name] {
				seen["#"+cmd.Name] = true
				s.Sections = append(s.Sections, cmd.Name)
			}
		case dsl.KindItem:
			items++
		case dsl.KindMention:
			if !seen["@"+cmd.Name] {
				seen["@"+cmd.Name] = true
				s.Mentions = append(s.Mentions, cmd.Name)
			}
		}
	}
	if items > votes {
		s.Items = items - votes
	}
	return s
}

// Acknowledgement renders the reply body for a successfully processed
// message.
func Acknowledgement(s Summary) string {
	var sb strings.Builder
	sb.WriteString("Got it. Your message has been recorded.\n\n")
	if len(s.Sections) > 0 {
		fmt.Fprintf(&sb, "Sections: %s\n", strings.Join(s.Sections, ", "))
	}
	if s.Items > 0 {
		fmt.Fprintf(&sb, "Items: %d\n", s.Items)
	}
	if s.Votes > 0 {
		fmt.Fprintf(&sb, "Votes: %d\n", s.Votes)
	}
	if len(s.Mentions) > 0 {
		fmt.Fprintf(&sb, "Mentions: %s\n", strings.Join(s.Mentions, ", "))
	}
	return sb.String()
}

// RankingTable renders the rankings for one section and attribute as a
// plain-text table, with disconnected components listed separately.
func RankingTable(section, attribute string, rankings []rank.Ranking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Rankings for #%s by :%s\n", section, attribute)

	if len(rankings) == 0 {
		sb.WriteString("\nNo items yet.\n")
		return sb.String()
	}

	byComponent := make(map[int][]rank.Ranking)
	maxComponent := 0
	for _, r := range rankings {
		byComponent[r.Component] = append(byComponent[r.Component], r)
		if r.Component > maxComponent {
			maxComponent = r.Component
		}
	}

	for c := 0; c <= maxComponent; c++ {
		group := byComponent[c]
		if len(group) == 0 {
			continue
		}
		sb.WriteByte('\n')
		if maxComponent > 0 {
			fmt.Fprintf(&sb, "Group %d:\n", c+1)
		}
		for _, r := range group {
			fmt.Fprintf(&sb, "  %2d. %s (%.3f)\n", r.Rank, r.Item, r.Score)
		}
	}
	return sb.String()
}

// ErrorReply renders the reply body for a message that failed to parse or
// reduce. The failing line number is included when the error carries one.
func ErrorReply(err error) string {
	var sb strings.Builder
	sb.WriteString("Your message could not be processed.\n\n")

	var parseErr *dsl.ParseError
	var scanErr *dsl.ScanError
	switch {
	case errors.As(err, &parseErr):
		fmt.Fprintf(&sb, "Line %d: %v\n", parseErr.Line, parseErr.Err)
		if parseErr.Snippet != "" {
			fmt.Fprintf(&sb, "  > %s\n", parseErr.Snippet)
		}
	case errors.As(err, &scanErr):
		fmt.Fprintf(&sb, "Line %d: %v\n", scanErr.Line, scanErr)
	default:
		fmt.Fprintf(&sb, "%v\n", err)
	}

	sb.WriteString("\nNothing from this message was recorded. Fix the text and resend the whole message.\n")
	return sb.String()
}

// QuoteOriginal renders the original message body as a quoted block for
// inclusion below a reply.
func QuoteOriginal(body string) string {
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return ""
	}
	lines := strings.Split(body, "\n")
	var sb strings.Builder
	sb.WriteString("\n---\n")
	for _, line := range lines {
		sb.WriteString("> ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// StateOverview renders a short summary of the reduced state, used by the
// CLI and the help reply.
func StateOverview(state *reduce.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Items: %d\n", len(state.Items))
	fmt.Fprintf(&sb, "Votes: %d\n", len(state.Votes))

	sections := make(map[string]int)
	for _, item := range state.Items {
		for section := range item.Sections {
			sections[section]++
		}
	}
	if len(sections) > 0 {
		names := make([]string, 0, len(sections))
		for name := range sections {
			names = append(names, name)
		}
		sort.Strings(names)
		sb.WriteString("Sections:\n")
		for _, name := range names {
			fmt.Fprintf(&sb, "  #%s (%d items)\n", name, sections[name])
		}
	}
	return sb.String()
}
