// Package store provides the append-only message log backing the vote
// pipeline. Every inbound email is recorded exactly once, keyed by the
// BLAKE3 hash of its body, so the full application state can be rebuilt
// by replaying the log in arrival order.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"

	"github.com/sortersocial/sorter/core/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	hash         TEXT NOT NULL UNIQUE,
	sender       TEXT NOT NULL,
	subject      TEXT NOT NULL,
	mail_id      TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL,
	received_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages(received_at, id);
`

// Message is one recorded inbound email.
type Message struct {
	ID         string    `json:"id"`
	Hash       string    `json:"hash"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	MailID     string    `json:"mail_id,omitempty"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Store is a SQLite-backed append-only message log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the message log at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	// modernc.org/sqlite serializes access per connection; a single
	// connection avoids SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.NewIO("migrate", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BodyHash computes the BLAKE3 hash used for message deduplication.
func BodyHash(body string) string {
	h := blake3.Sum256([]byte(body))
	return hex.EncodeToString(h[:])
}

// Save records a message. Sender, subject and body come from the inbound
// mail; the id, hash and timestamp are assigned here. A message whose body
// hash is already present is a duplicate delivery and is rejected with
// ErrAlreadyExists.
func (s *Store) Save(ctx context.Context, sender, subject, mailID, body string) (*Message, error) {
	msg := &Message{
		ID:         uuid.NewString(),
		Hash:       BodyHash(body),
		Sender:     sender,
		Subject:    subject,
		MailID:     mailID,
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE hash = ?`, msg.Hash).Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(err, "checking for duplicate message")
	}
	if exists > 0 {
		return nil, fmt.Errorf("message %s: %w", msg.Hash[:12], errors.ErrAlreadyExists)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, hash, sender, subject, mail_id, body, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Hash, msg.Sender, msg.Subject, msg.MailID, msg.Body,
		msg.ReceivedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, errors.Wrap(err, "inserting message")
	}
	return msg, nil
}

// Get returns a message by its id.
func (s *Store) Get(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, hash, sender, subject, mail_id, body, received_at
		 FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("message", id)
	}
	return msg, err
}

// Count returns the number of recorded messages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "counting messages")
	}
	return n, nil
}

// Replay calls fn for every message in arrival order. A non-nil error from
// fn stops the replay and is returned.
func (s *Store) Replay(ctx context.Context, fn func(*Message) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hash, sender, subject, mail_id, body, received_at
		 FROM messages ORDER BY received_at, id`)
	if err != nil {
		return errors.Wrap(err, "querying message log")
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	return rows.Err()
}

// All returns every message in arrival order.
func (s *Store) All(ctx context.Context) ([]*Message, error) {
	var out []*Message
	err := s.Replay(ctx, func(m *Message) error {
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var receivedAt string
	err := row.Scan(&msg.ID, &msg.Hash, &msg.Sender, &msg.Subject,
		&msg.MailID, &msg.Body, &receivedAt)
	if err != nil {
		return nil, err
	}
	msg.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing received_at for message %s", msg.ID)
	}
	return &msg, nil
}
