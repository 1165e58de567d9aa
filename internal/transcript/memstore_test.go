package transcript_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/streamscribe/internal/transcript"
)

func TestMemStore_AppendAndEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := transcript.NewMemStore()

	for _, text := range []string{"one", "two"} {
		if err := s.Append(ctx, transcript.Entry{SessionID: "a", Text: text, Final: true}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Append(ctx, transcript.Entry{SessionID: "b", Text: "other"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Entries(ctx, "a")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for i, e := range got {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d Seq = %d, want %d", i, e.Seq, i+1)
		}
		if e.CreatedAt.IsZero() {
			t.Errorf("entry %d CreatedAt not set", i)
		}
	}
	if got[0].Text != "one" || got[1].Text != "two" {
		t.Errorf("texts = %q, %q", got[0].Text, got[1].Text)
	}

	// Returned slices are copies.
	got[0].Text = "mutated"
	again, _ := s.Entries(ctx, "a")
	if again[0].Text != "one" {
		t.Error("Entries exposed internal state")
	}
}

func TestMemStore_UnknownSession(t *testing.T) {
	t.Parallel()

	var s transcript.MemStore
	if _, err := s.Entries(context.Background(), "missing"); !errors.Is(err, transcript.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestMemStore_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := transcript.NewMemStore()
	if err := s.Append(ctx, transcript.Entry{SessionID: "a"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Append err = %v, want context.Canceled", err)
	}
}
