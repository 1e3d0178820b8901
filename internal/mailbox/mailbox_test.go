package mailbox

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeInboundPayload(t *testing.T) {
	payload := `{
		"From": "voter@example.com",
		"FromName": "A Voter",
		"To": "sort@mail.example.com",
		"Subject": "Re: fruit rankings",
		"MessageID": "a8c1040e-db1c-4e4b-9eb3-c6bb38a4ddee",
		"TextBody": "#fruit\n-apple\n",
		"HtmlBody": "",
		"Headers": [
			{"Name": "Message-ID", "Value": "<orig@mail.example.com>"},
			{"Name": "References", "Value": "<root@mail.example.com>"}
		]
	}`

	var msg InboundMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if msg.From != "voter@example.com" {
		t.Errorf("From = %q", msg.From)
	}
	if msg.Subject != "Re: fruit rankings" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if got := msg.Header("message-id"); got != "<orig@mail.example.com>" {
		t.Errorf("Header(message-id) = %q", got)
	}
	if got := msg.Header("References"); got != "<root@mail.example.com>" {
		t.Errorf("Header(References) = %q", got)
	}
	if got := msg.Header("X-Missing"); got != "" {
		t.Errorf("Header(X-Missing) = %q, want empty", got)
	}
}

func TestExtractBodyPrefersText(t *testing.T) {
	msg := InboundMessage{
		TextBody: "#fruit\n-apple\n",
		HTMLBody: "<p>ignored</p>",
	}
	if got := msg.ExtractBody(); got != "#fruit\n-apple\n" {
		t.Errorf("ExtractBody = %q", got)
	}
}

func TestExtractBodyFallsBackToHTML(t *testing.T) {
	msg := InboundMessage{
		TextBody: "   \n",
		HTMLBody: "<html><body><div>#fruit</div><div>-apple</div></body></html>",
	}
	got := msg.ExtractBody()
	if !strings.Contains(got, "#fruit") || !strings.Contains(got, "-apple") {
		t.Errorf("ExtractBody = %q, want both lines", got)
	}
}

func TestExtractBodyEmpty(t *testing.T) {
	msg := InboundMessage{}
	if got := msg.ExtractBody(); got != "" {
		t.Errorf("ExtractBody = %q, want empty", got)
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "paragraphs become lines",
			src:  "<p>#fruit</p><p>-apple</p>",
			want: "#fruit\n-apple",
		},
		{
			name: "line breaks",
			src:  "#fruit<br>-apple<br>-orange",
			want: "#fruit\n-apple\n-orange",
		},
		{
			name: "script and style dropped",
			src:  "<style>p{color:red}</style><p>-apple</p><script>alert(1)</script>",
			want: "-apple",
		},
		{
			name: "inline markup flattened",
			src:  "<p>-apple <b>2:1</b> orange</p>",
			want: "-apple 2:1 orange",
		},
		{
			name: "nested blocks collapse blank runs",
			src:  "<div><div><p>#fruit</p></div><div><p>-apple</p></div></div>",
			want: "#fruit\n-apple",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTMLToText(tt.src); got != tt.want {
				t.Errorf("HTMLToText(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestStripReply(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "plain body untouched",
			body: "#fruit\n-apple",
			want: "#fruit\n-apple",
		},
		{
			name: "quoted history dropped",
			body: "#fruit\n-apple\n\n> previous message\n> more quoting",
			want: "#fruit\n-apple",
		},
		{
			name: "attribution line dropped",
			body: "#fruit\n-apple\n\nOn Mon, Jan 2, 2023 at 3:04 PM Sorter <sort@example.com> wrote:\n> rankings",
			want: "#fruit\n-apple",
		},
		{
			name: "signature delimiter dropped",
			body: "#fruit\n-apple\n-- \nAlice\nalice@example.com",
			want: "#fruit\n-apple",
		},
		{
			name: "mobile signature dropped",
			body: "#fruit\n-apple\n\nSent from my iPhone",
			want: "#fruit\n-apple",
		},
		{
			name: "crlf normalized",
			body: "#fruit\r\n-apple\r\n\r\n> quoted",
			want: "#fruit\n-apple",
		},
		{
			name: "item markers survive",
			body: "#fruit\n-apple 2:1 orange\n--not a signature\n",
			want: "#fruit\n-apple 2:1 orange\n--not a signature",
		},
		{
			name: "quoted line inside body kept",
			body: "#ops\n-task {\nrun: cmd\n> threshold line\n}",
			want: "#ops\n-task {\nrun: cmd\n> threshold line\n}",
		},
		{
			name: "signature delimiter inside raw block kept",
			body: "#ops\n-notes {{\n-- \nstill inside\n}}\n\nSent from my iPhone",
			want: "#ops\n-notes {{\n-- \nstill inside\n}}",
		},
		{
			name: "quoted history after body closes dropped",
			body: "#ops\n-task {\nrun: cmd\n}\n\n> previous message\n> more quoting",
			want: "#ops\n-task {\nrun: cmd\n}",
		},
		{
			name: "empty body",
			body: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripReply(tt.body); got != tt.want {
				t.Errorf("StripReply(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}
