// Package telegram implements transport.Transport on top of telebot.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/nezbut/tgmailer/internal/entity"
	"github.com/nezbut/tgmailer/internal/transport"
	"github.com/nezbut/tgmailer/pkg/logx"
)

type Config struct {
	Token string
	// RatePerSec caps outbound API calls across all tasks and mailings.
	// Telegram allows ~30 msg/s bot-wide; default 25 leaves headroom.
	RatePerSec int
}

// Adapter sends and deletes messages through the Telegram Bot API.
// It never receives updates; the webhook side lives elsewhere.
type Adapter struct {
	bot     *tele.Bot
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	return &Adapter{
		bot:     b,
		log:     log.With(logx.String("comp", "telegram")),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (a *Adapter) SendText(ctx context.Context, userID int64, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.Send(tele.ChatID(userID), text)
	return classify(err)
}

func (a *Adapter) SendMedia(ctx context.Context, userID int64, kind entity.MediaType, address, caption string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	var what any
	switch kind {
	case entity.MediaPhoto:
		what = &tele.Photo{File: fileFor(address), Caption: caption}
	case entity.MediaVideo:
		what = &tele.Video{File: fileFor(address), Caption: caption}
	case entity.MediaAudio:
		what = &tele.Audio{File: fileFor(address), Caption: caption}
	case entity.MediaDocument:
		what = &tele.Document{File: fileFor(address), Caption: caption}
	default:
		return errors.New("telegram: unknown media type " + string(kind))
	}
	_, err := a.bot.Send(tele.ChatID(userID), what)
	return classify(err)
}

func (a *Adapter) DeleteMessage(ctx context.Context, userID int64, messageID int) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	err := a.bot.Delete(tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    userID,
	})
	return classify(err)
}

func fileFor(address string) tele.File {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return tele.FromURL(address)
	}
	// Anything else is treated as a Telegram file id.
	return tele.File{FileID: address}
}

// classify maps telebot failures onto the transport error taxonomy:
// flood control becomes RateLimitedError, 403-class API errors become
// ErrForbidden, everything else passes through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &transport.RateLimitedError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second}
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code == 403 {
		return transport.ErrForbidden
	}
	return err
}

var _ transport.Transport = (*Adapter)(nil)
