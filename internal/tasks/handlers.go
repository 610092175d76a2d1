package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nezbut/tgmailer/internal/entity"
	"github.com/nezbut/tgmailer/internal/transport"
	"github.com/nezbut/tgmailer/pkg/logx"
)

// MailingRunner drains one mailing's recipient stream.
type MailingRunner interface {
	Run(ctx context.Context, mail entity.Mailing) error
}

// HandlerDeps carries everything the built-in task handlers need.
type HandlerDeps struct {
	Transport transport.Transport
	Mailings  MailingRunner
	Log       logx.Logger
}

// RegisterBuiltin binds the built-in scheduled tasks: single message send,
// message deletion, and mailing start.
func RegisterBuiltin(reg *Registry, deps HandlerDeps) error {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "tasks.handlers"))

	if err := reg.Register(TaskSendMessage, sendMessageHandler(deps.Transport, log)); err != nil {
		return err
	}
	if err := reg.Register(TaskDeleteMessage, deleteMessageHandler(deps.Transport, log)); err != nil {
		return err
	}
	return reg.Register(TaskStartMailing, startMailingHandler(deps.Mailings))
}

func sendMessageHandler(t transport.Transport, log logx.Logger) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var msg entity.MessageSendScheduled
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decode send payload: %w", err)
		}
		err := t.SendText(ctx, msg.User.ID, msg.Text)
		if transport.IsForbidden(err) {
			// Redelivery cannot fix a blocked bot; drop the send.
			log.Warn("scheduled send skipped, recipient unreachable",
				logx.Int64("user_id", msg.User.ID))
			return nil
		}
		return err
	}
}

func deleteMessageHandler(t transport.Transport, log logx.Logger) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var msg entity.MessageDeletionScheduled
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decode deletion payload: %w", err)
		}
		err := t.DeleteMessage(ctx, msg.User.ID, msg.ID)
		if transport.IsForbidden(err) {
			log.Warn("scheduled deletion skipped, chat unreachable",
				logx.Int64("user_id", msg.User.ID),
				logx.Int("message_id", msg.ID))
			return nil
		}
		return err
	}
}

func startMailingHandler(runner MailingRunner) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var sm entity.ScheduledMailing
		if err := json.Unmarshal(payload, &sm); err != nil {
			return fmt.Errorf("decode mailing payload: %w", err)
		}
		return runner.Run(ctx, sm.Mailing)
	}
}
