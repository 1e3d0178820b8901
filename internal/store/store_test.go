package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sortersocial/sorter/core/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg, err := s.Save(ctx, "voter@example.com", "votes", "<abc@mail>", "#fruit\n-apple\n")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if msg.ID == "" {
		t.Error("Expected a generated message ID")
	}
	if len(msg.Hash) != 64 {
		t.Errorf("Expected 64-char hash, got %d chars", len(msg.Hash))
	}
	if msg.ReceivedAt.IsZero() {
		t.Error("Expected a receive timestamp")
	}

	got, err := s.Get(ctx, msg.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Sender != "voter@example.com" {
		t.Errorf("Sender = %q, want voter@example.com", got.Sender)
	}
	if got.Body != "#fruit\n-apple\n" {
		t.Errorf("Body = %q", got.Body)
	}
	if got.MailID != "<abc@mail>" {
		t.Errorf("MailID = %q", got.MailID)
	}
	if !got.ReceivedAt.Equal(msg.ReceivedAt) {
		t.Errorf("ReceivedAt = %v, want %v", got.ReceivedAt, msg.ReceivedAt)
	}
}

func TestGetNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "no-such-id")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSaveRejectsDuplicateBody(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "a@example.com", "votes", "", "#fruit\n-apple\n"); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	// Same body from a different sender is still a duplicate delivery.
	_, err := s.Save(ctx, "b@example.com", "fwd: votes", "", "#fruit\n-apple\n")
	if !errors.Is(err, errors.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestReplayOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bodies := []string{"#a\n-one\n", "#b\n-two\n", "#c\n-three\n"}
	for _, body := range bodies {
		if _, err := s.Save(ctx, "voter@example.com", "votes", "", body); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	var replayed []string
	err := s.Replay(ctx, func(m *Message) error {
		replayed = append(replayed, m.Body)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(replayed) != len(bodies) {
		t.Fatalf("Replayed %d messages, want %d", len(replayed), len(bodies))
	}
	for i, body := range bodies {
		if replayed[i] != body {
			t.Errorf("Replay[%d] = %q, want %q", i, replayed[i], body)
		}
	}
}

func TestReplayStopsOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, body := range []string{"#a\n-one\n", "#b\n-two\n"} {
		if _, err := s.Save(ctx, "voter@example.com", "votes", "", body); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	stop := fmt.Errorf("stop after first message")
	seen := 0
	err := s.Replay(ctx, func(m *Message) error {
		seen++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("Expected stop error, got %v", err)
	}
	if seen != 1 {
		t.Errorf("Callback ran %d times, want 1", seen)
	}
}

func TestAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "voter@example.com", "votes", "", "#a\n-one\n"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	msgs, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Got %d messages, want 1", len(msgs))
	}
}

func TestBodyHashDeterministic(t *testing.T) {
	a := BodyHash("#fruit\n-apple\n")
	b := BodyHash("#fruit\n-apple\n")
	c := BodyHash("#fruit\n-orange\n")
	if a != b {
		t.Error("Same body should hash identically")
	}
	if a == c {
		t.Error("Different bodies should hash differently")
	}
}

func TestOpenReopensExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messages.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := s.Save(ctx, "voter@example.com", "votes", "", "#a\n-one\n"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s2.Close()

	n, err := s2.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Count after reopen = %d, want 1", n)
	}
}
