package telegram

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/nezbut/tgmailer/internal/transport"
)

func TestClassifyFlood(t *testing.T) {
	t.Parallel()
	err := classify(tele.FloodError{RetryAfter: 5})
	after, ok := transport.RetryAfter(err)
	if !ok {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if after != 5*time.Second {
		t.Fatalf("RetryAfter = %v, want 5s", after)
	}
}

func TestClassifyForbidden(t *testing.T) {
	t.Parallel()
	if err := classify(tele.ErrBlockedByUser); !transport.IsForbidden(err) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := classify(tele.ErrNotStartedByUser); !transport.IsForbidden(err) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestClassifyPassthrough(t *testing.T) {
	t.Parallel()
	if classify(nil) != nil {
		t.Fatal("classify(nil) != nil")
	}
	plain := errors.New("boom")
	if got := classify(plain); !errors.Is(got, plain) {
		t.Fatalf("classify(%v) = %v, want passthrough", plain, got)
	}
}

func TestFileFor(t *testing.T) {
	t.Parallel()
	if f := fileFor("https://example.com/a.png"); f.FileURL == "" {
		t.Fatal("expected URL file")
	}
	if f := fileFor("AgACAgIAAxkBAAIB"); f.FileID == "" {
		t.Fatal("expected file-id file")
	}
}
