// Package transport defines the bot-transport capability consumed by the
// scheduled tasks and the mailing pipeline, together with the error taxonomy
// the pipeline classifies on.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nezbut/tgmailer/internal/entity"
)

// Transport is an opaque "send message" / "delete message" capability.
// Implementations map platform failures onto RateLimitedError and
// ErrForbidden; any other error is treated as fatal for the record.
type Transport interface {
	SendText(ctx context.Context, userID int64, text string) error
	SendMedia(ctx context.Context, userID int64, kind entity.MediaType, address, caption string) error
	DeleteMessage(ctx context.Context, userID int64, messageID int) error
}

// ErrForbidden marks a permanently unreachable recipient (the user blocked
// the bot or the chat is gone). Callers skip the recipient, not the mailing.
var ErrForbidden = errors.New("recipient unreachable")

// RateLimitedError is a recoverable, recipient-scoped rate limit carrying
// the wait the platform demands before the next attempt.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RetryAfter extracts the rate-limit wait from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// IsForbidden reports whether err marks the recipient as unreachable.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
