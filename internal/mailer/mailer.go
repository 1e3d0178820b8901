// Package mailer sends reply emails through the Postmark API. Replies are
// threaded onto the original message via In-Reply-To and References so
// mail clients keep the conversation together.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sortersocial/sorter/core/errors"
	"github.com/sortersocial/sorter/internal/logging"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

// Config holds the mailer configuration.
type Config struct {
	// ServerToken is the Postmark server API token. When empty the mailer
	// is disabled: Send logs and drops instead of delivering.
	ServerToken string
	// From is the sender address for outbound replies.
	From string
	// APIURL overrides the Postmark endpoint, used in tests.
	APIURL string
}

// Mailer delivers reply emails.
type Mailer struct {
	cfg    Config
	client *http.Client
}

// New creates a Mailer from the given configuration.
func New(cfg Config) *Mailer {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	return &Mailer{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether outbound delivery is configured.
func (m *Mailer) Enabled() bool {
	return m.cfg.ServerToken != ""
}

// Reply describes an outbound reply email.
type Reply struct {
	To        string
	Subject   string
	Body      string
	InReplyTo string // Message-ID of the message being answered
	References string // References header of the message being answered
}

// outboundMessage is the Postmark send request payload.
type outboundMessage struct {
	From     string           `json:"From"`
	To       string           `json:"To"`
	Subject  string           `json:"Subject"`
	TextBody string           `json:"TextBody"`
	Headers  []outboundHeader `json:"Headers,omitempty"`
}

type outboundHeader struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// postmarkResponse is the subset of the Postmark response we inspect.
type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
	MessageID string `json:"MessageID"`
}

// Send delivers a reply. With no server token configured the reply is
// logged and dropped, which keeps local development from needing Postmark
// credentials.
func (m *Mailer) Send(ctx context.Context, reply Reply) error {
	if reply.To == "" {
		return errors.NewValidation("to", "recipient is required")
	}
	if !m.Enabled() {
		logging.InfoContext(ctx, "mailer_disabled_dropping_reply",
			"to", reply.To, "subject", reply.Subject)
		return nil
	}

	msg := outboundMessage{
		From:     m.cfg.From,
		To:       reply.To,
		Subject:  ReplySubject(reply.Subject),
		TextBody: reply.Body,
		Headers:  threadingHeaders(reply),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encoding outbound message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "building send request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", m.cfg.ServerToken)

	resp, err := m.client.Do(req)
	if err != nil {
		logging.MailError(reply.To, "send", err)
		return errors.Wrap(err, "sending reply")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("postmark returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		logging.MailError(reply.To, "send", err)
		return err
	}

	var pr postmarkResponse
	if err := json.Unmarshal(body, &pr); err == nil && pr.ErrorCode != 0 {
		err := fmt.Errorf("postmark error %d: %s", pr.ErrorCode, pr.Message)
		logging.MailError(reply.To, "send", err)
		return err
	}
	return nil
}

// ReplySubject prefixes a subject with "Re: " unless it already carries
// one, case-insensitively.
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if trimmed == "" {
		return "Re: your votes"
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// threadingHeaders builds In-Reply-To and References from the original
// message. References accumulates: the original's chain plus its own id.
func threadingHeaders(reply Reply) []outboundHeader {
	if reply.InReplyTo == "" {
		return nil
	}
	refs := reply.InReplyTo
	if reply.References != "" {
		refs = reply.References + " " + reply.InReplyTo
	}
	return []outboundHeader{
		{Name: "In-Reply-To", Value: reply.InReplyTo},
		{Name: "References", Value: refs},
	}
}
