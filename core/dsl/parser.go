package dsl

import "strings"

// Parse converts a raw email body into a Document. It is a pure function of
// its input: classification and body collection are driven by one scanner
// pass, every call builds its own state, and concurrent calls are
// independent.
//
// Parsing is total and fails closed: any scan or parse error aborts the
// whole call and no partial Document is returned.
func Parse(raw string) (*Document, error) {
	p := parser{sc: NewScanner()}
	return p.run(raw)
}

// openBody tracks a multi-line body between its opening delimiter and the
// matching close.
type openBody struct {
	cmd      Command
	raw      bool
	openLine int
	lines    []string
}

type parser struct {
	sc   *Scanner
	doc  Document
	body *openBody
}

func (p *parser) run(raw string) (*Document, error) {
	lines := splitLines(raw)
	for i, text := range lines {
		if err := p.line(i+1, text); err != nil {
			return nil, err
		}
	}

	// Scan failures take precedence: an open raw block at end of input is
	// reported as such, not as a generic unclosed body.
	if err := p.sc.Err(len(lines)); err != nil {
		return nil, err
	}
	if p.body != nil {
		return nil, &ParseError{Line: p.body.openLine, Err: ErrUnclosedBody}
	}
	return &p.doc, nil
}

func (p *parser) line(n int, text string) error {
	tr := p.sc.ScanLine(text)

	if p.body != nil {
		return p.bodyLine(n, text, tr)
	}

	if !keepLine(text, tr.Entry) {
		return nil
	}

	trimmed := strings.TrimLeft(text, " \t")
	if trimmed == "" {
		// Blank interior line with no body open: structural depth was
		// raised outside any command, which no production allows.
		return unexpectedLine(n, text)
	}
	kind, ok := markerKinds[trimmed[0]]
	if !ok {
		return unexpectedLine(n, text)
	}

	markerEnd := len(text) - len(trimmed) + 1
	cmd := Command{Kind: kind, Line: n}

	if tr.OpenOffset < 0 {
		// Plain directive line, no body.
		cmd.Name = strings.TrimSpace(text[markerEnd:])
		if cmd.Name == "" {
			return unexpectedLine(n, text)
		}
		p.doc.Commands = append(p.doc.Commands, cmd)
		return nil
	}

	cmd.Name = strings.TrimSpace(text[markerEnd:tr.OpenOffset])
	if cmd.Name == "" {
		return unexpectedLine(n, text)
	}

	openLen := 1
	if tr.OpenRaw {
		openLen = 2
	}
	afterOpen := tr.OpenOffset + openLen

	if tr.CloseOffset >= 0 {
		// Inline body, opened and closed on the directive line.
		inner := text[afterOpen:tr.CloseOffset]
		if err := requireBlankTail(n, text, tr.CloseOffset+tr.CloseLen); err != nil {
			return err
		}
		cmd.Body = &Body{RawText: strings.TrimSpace(inner), IsRawBlock: tr.OpenRaw}
		p.doc.Commands = append(p.doc.Commands, cmd)
		return nil
	}

	// Multi-line body: collect subsequent lines until the scanner reports
	// the matching close.
	p.body = &openBody{cmd: cmd, raw: tr.OpenRaw, openLine: n}
	if frag := text[afterOpen:]; strings.TrimSpace(frag) != "" {
		p.body.lines = append(p.body.lines, frag)
	}
	return nil
}

// bodyLine handles one line while a multi-line body is open. Content is
// preserved verbatim; the line carrying the closing delimiter contributes
// only the text before the delimiter.
func (p *parser) bodyLine(n int, text string, tr LineTrace) error {
	if tr.CloseOffset < 0 {
		p.body.lines = append(p.body.lines, text)
		return nil
	}

	if frag := text[:tr.CloseOffset]; frag != "" {
		p.body.lines = append(p.body.lines, frag)
	}
	if err := requireBlankTail(n, text, tr.CloseOffset+tr.CloseLen); err != nil {
		return err
	}

	cmd := p.body.cmd
	cmd.Body = &Body{RawText: joinBody(p.body.lines), IsRawBlock: p.body.raw}
	p.doc.Commands = append(p.doc.Commands, cmd)
	p.body = nil
	return nil
}

// requireBlankTail rejects trailing content after a closing delimiter; the
// grammar has no production for text on the same line after a body ends.
func requireBlankTail(n int, text string, from int) error {
	if from < len(text) && strings.TrimSpace(text[from:]) != "" {
		return unexpectedLine(n, text)
	}
	return nil
}

// joinBody reassembles collected body lines. Every line keeps its own
// terminator so the body round-trips through a re-scan unchanged.
func joinBody(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
