// Package mailbox handles inbound email: decoding the Postmark webhook
// payload, recovering a usable plain-text body from messages that only
// carry HTML, and stripping the quoted history and signatures that mail
// clients append to replies.
package mailbox

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/sortersocial/sorter/core/dsl"
)

// InboundMessage is the Postmark inbound webhook payload, reduced to the
// fields the pipeline consumes.
type InboundMessage struct {
	From      string          `json:"From"`
	FromName  string          `json:"FromName"`
	To        string          `json:"To"`
	Subject   string          `json:"Subject"`
	MessageID string          `json:"MessageID"`
	TextBody  string          `json:"TextBody"`
	HTMLBody  string          `json:"HtmlBody"`
	Headers   []InboundHeader `json:"Headers"`
}

// InboundHeader is a single mail header from the webhook payload.
type InboundHeader struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// Header returns the value of the named header, or "" if absent.
// Header names are matched case-insensitively.
func (m *InboundMessage) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// ExtractBody returns the plain-text body of the message. The text part is
// preferred; HTML-only messages are converted by walking the document and
// collecting text nodes, with block elements separated by newlines.
func (m *InboundMessage) ExtractBody() string {
	if strings.TrimSpace(m.TextBody) != "" {
		return m.TextBody
	}
	if m.HTMLBody == "" {
		return ""
	}
	return HTMLToText(m.HTMLBody)
}

// blockElements end the current line when converting HTML to text.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "table": true, "ul": true, "ol": true,
}

// HTMLToText converts an HTML document to plain text. Script and style
// contents are dropped; block-level elements become line breaks.
func HTMLToText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		// html.Parse recovers from almost anything; on a genuine
		// failure the raw markup is all we have.
		return src
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" || n.Data == "head" {
				return
			}
			if blockElements[n.Data] {
				sb.WriteByte('\n')
			}
		case html.TextNode:
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	return normalizeText(sb.String())
}

// normalizeText trims each line and drops blank ones. Blank lines carry no
// information downstream, so paragraph spacing is not preserved.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// attributionLine matches the line a mail client inserts above quoted
// history, e.g. "On Mon, Jan 2, 2023 at 3:04 PM Alice <a@b.c> wrote:".
var attributionLine = regexp.MustCompile(`^On .{1,200}wrote:\s*$`)

// mobileSignatures are one-line signatures appended by phone clients.
var mobileSignatures = []string{
	"Sent from my iPhone",
	"Sent from my iPad",
	"Sent from my Android",
	"Get Outlook for iOS",
	"Get Outlook for Android",
}

// StripReply removes quoted history and signatures from a reply body,
// keeping only the text the sender actually typed. Everything from the
// first attribution line, quoted (">") block or signature delimiter
// ("-- ") onward is dropped.
//
// Stripping is span-aware: a line that the scanner places inside an open
// body span (or a string, comment, or raw block continuing across lines)
// is payload, and a ">" or "--" there is kept verbatim.
func StripReply(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	sc := dsl.NewScanner()
	var kept []string

scan:
	for _, line := range lines {
		tr := sc.ScanLine(line)
		if tr.Entry.State == dsl.StateNormal && tr.Entry.Depth == 0 {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, ">") {
				break
			}
			if attributionLine.MatchString(trimmed) {
				break
			}
			// The signature delimiter is "-- " with a trailing space, but
			// clients routinely trim it.
			if line == "-- " || trimmed == "--" {
				break
			}
			for _, sig := range mobileSignatures {
				if strings.EqualFold(trimmed, sig) {
					break scan
				}
			}
		}
		kept = append(kept, line)
	}

	return strings.TrimRight(strings.Join(kept, "\n"), " \t\n")
}
