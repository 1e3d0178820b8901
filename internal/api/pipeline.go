package api

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sortersocial/sorter/core/dsl"
	"github.com/sortersocial/sorter/core/errors"
	"github.com/sortersocial/sorter/core/rank"
	"github.com/sortersocial/sorter/core/reduce"
	"github.com/sortersocial/sorter/internal/logging"
	"github.com/sortersocial/sorter/internal/mailbox"
	"github.com/sortersocial/sorter/internal/mailer"
	"github.com/sortersocial/sorter/internal/render"
	"github.com/sortersocial/sorter/internal/server"
	"github.com/sortersocial/sorter/internal/store"
)

// Pipeline ties the message log, the reducer and the mailer together. All
// state mutation goes through it, serialized by a mutex, so webhook
// deliveries can be handled concurrently by the HTTP server.
type Pipeline struct {
	mu      sync.Mutex
	store   *store.Store
	reducer *reduce.Reducer
	mailer  *mailer.Mailer
	hub     *Hub
}

// NewPipeline creates a pipeline over the given message log and mailer.
func NewPipeline(st *store.Store, m *mailer.Mailer) *Pipeline {
	return &Pipeline{
		store:   st,
		reducer: reduce.NewReducer(),
		mailer:  m,
	}
}

// SetHub attaches a WebSocket hub to receive state-change broadcasts.
func (p *Pipeline) SetHub(h *Hub) {
	p.hub = h
}

// Load rebuilds the reducer state by replaying the message log in arrival
// order. Messages that no longer parse or reduce are skipped with a log
// line; a historic bad email must not block startup.
func (p *Pipeline) Load(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reducer = reduce.NewReducer()
	replayed := 0
	err := p.store.Replay(ctx, func(msg *store.Message) error {
		body := mailbox.StripReply(msg.Body)
		doc, err := dsl.Parse(body)
		if err != nil {
			logging.Warn("skipping unparseable message during replay",
				"message_id", msg.ID, "error", err)
			return nil
		}
		rctx := reduce.Context{Author: msg.Sender, SourceID: msg.ID, Timestamp: msg.ReceivedAt}
		if err := p.reducer.ProcessDocument(doc, rctx); err != nil {
			logging.Warn("skipping unreducible message during replay",
				"message_id", msg.ID, "error", err)
			return nil
		}
		replayed++
		return nil
	})
	if err != nil {
		return replayed, errors.Wrap(err, "replaying message log")
	}
	return replayed, nil
}

// Result describes the outcome of processing one inbound message.
type Result struct {
	MessageID string
	Duplicate bool
	ParseErr  error
	Summary   render.Summary
}

// Process handles one inbound email: record it, parse and reduce it, and
// send the reply. A message that fails to parse is still recorded (the log
// is append-only) but contributes nothing to the state; the sender gets an
// error reply instead of an acknowledgement.
func (p *Pipeline) Process(ctx context.Context, in *mailbox.InboundMessage) (*Result, error) {
	body := server.SanitizeUserInput(in.ExtractBody())
	if strings.TrimSpace(body) == "" {
		return nil, errors.NewValidation("body", "message has no usable text")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg, err := p.store.Save(ctx, in.From, in.Subject, in.Header("Message-ID"), body)
	if errors.Is(err, errors.ErrAlreadyExists) {
		logging.InfoContext(ctx, "duplicate_delivery_ignored", "from", in.From)
		return &Result{Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}

	res := &Result{MessageID: msg.ID}
	stripped := mailbox.StripReply(body)
	doc, err := dsl.Parse(stripped)
	if err != nil {
		res.ParseErr = err
		p.reply(ctx, in, render.ErrorReply(err)+render.QuoteOriginal(stripped))
		return res, nil
	}

	before := len(p.reducer.State().Votes)
	rctx := reduce.Context{Author: msg.Sender, SourceID: msg.ID, Timestamp: msg.ReceivedAt}
	if err := p.reducer.ProcessDocument(doc, rctx); err != nil {
		res.ParseErr = err
		p.reply(ctx, in, render.ErrorReply(err)+render.QuoteOriginal(stripped))
		return res, nil
	}
	votes := len(p.reducer.State().Votes) - before

	res.Summary = render.Summarize(doc, votes)
	p.reply(ctx, in, render.Acknowledgement(res.Summary))

	if p.hub != nil {
		p.hub.BroadcastAccepted(in.From, res.Summary.Sections, votes)
	}
	return res, nil
}

// reply sends a threaded reply back to the sender. Delivery failures are
// logged but never fail message processing; the log entry is already
// durable.
func (p *Pipeline) reply(ctx context.Context, in *mailbox.InboundMessage, body string) {
	if p.mailer == nil {
		return
	}
	err := p.mailer.Send(ctx, mailer.Reply{
		To:         in.From,
		Subject:    in.Subject,
		Body:       body,
		InReplyTo:  in.Header("Message-ID"),
		References: in.Header("References"),
	})
	if err != nil {
		logging.MailError(in.From, "reply", err)
	}
}

// Rankings computes the current rankings for a section and attribute.
func (p *Pipeline) Rankings(section, attribute string) ([]rank.Ranking, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return rank.Rankings(p.reducer.State(), section, attribute)
}

// Overview returns a snapshot of the accumulated state rendered as text.
func (p *Pipeline) Overview() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return render.StateOverview(p.reducer.State())
}

// Counts returns the number of stored messages and reduced items.
func (p *Pipeline) Counts(ctx context.Context) (messages, items int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	messages, err = p.store.Count(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("counting messages: %w", err)
	}
	return messages, len(p.reducer.State().Items), nil
}
