package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nezbut/tgmailer/internal/entity"
	"github.com/nezbut/tgmailer/internal/transport"
	"github.com/nezbut/tgmailer/pkg/logx"
)

type fakeTransport struct {
	sendErr   error
	deleteErr error

	sentTo  []int64
	texts   []string
	deleted []int
}

func (t *fakeTransport) SendText(ctx context.Context, userID int64, text string) error {
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sentTo = append(t.sentTo, userID)
	t.texts = append(t.texts, text)
	return nil
}

func (t *fakeTransport) SendMedia(ctx context.Context, userID int64, kind entity.MediaType, address, caption string) error {
	return errors.New("unexpected SendMedia")
}

func (t *fakeTransport) DeleteMessage(ctx context.Context, userID int64, messageID int) error {
	if t.deleteErr != nil {
		return t.deleteErr
	}
	t.deleted = append(t.deleted, messageID)
	return nil
}

type fakeRunner struct {
	got []entity.Mailing
	err error
}

func (r *fakeRunner) Run(ctx context.Context, mail entity.Mailing) error {
	r.got = append(r.got, mail)
	return r.err
}

func mustPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func builtinRegistry(t *testing.T, ft *fakeTransport, fr *fakeRunner) *Registry {
	t.Helper()
	reg := NewRegistry()
	deps := HandlerDeps{Transport: ft, Mailings: fr, Log: logx.Nop()}
	if err := RegisterBuiltin(reg, deps); err != nil {
		t.Fatalf("RegisterBuiltin: %v", err)
	}
	return reg
}

func TestRegisterBuiltinBindsAllTasks(t *testing.T) {
	t.Parallel()

	reg := builtinRegistry(t, &fakeTransport{}, &fakeRunner{})
	for _, name := range []string{TaskSendMessage, TaskDeleteMessage, TaskStartMailing} {
		if _, ok := reg.Lookup(name); !ok {
			t.Errorf("task %q not registered", name)
		}
	}
}

func TestSendMessageHandler(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	reg := builtinRegistry(t, ft, &fakeRunner{})
	h, _ := reg.Lookup(TaskSendMessage)

	msg := entity.MessageSendScheduled{
		ID:   "m1",
		User: entity.User{ID: 7},
		Text: "reminder",
		Scheduled: entity.Scheduled{
			ScheduledTime: time.Now().UTC(),
		},
	}
	if err := h(context.Background(), mustPayload(t, msg)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(ft.sentTo) != 1 || ft.sentTo[0] != 7 || ft.texts[0] != "reminder" {
		t.Fatalf("unexpected send: to=%v text=%v", ft.sentTo, ft.texts)
	}
}

func TestSendMessageHandlerSkipsForbidden(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{sendErr: transport.ErrForbidden}
	reg := builtinRegistry(t, ft, &fakeRunner{})
	h, _ := reg.Lookup(TaskSendMessage)

	msg := entity.MessageSendScheduled{User: entity.User{ID: 8}, Text: "x"}
	if err := h(context.Background(), mustPayload(t, msg)); err != nil {
		t.Fatalf("forbidden send must be dropped, got %v", err)
	}
}

func TestSendMessageHandlerSurfacesOtherErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ft := &fakeTransport{sendErr: boom}
	reg := builtinRegistry(t, ft, &fakeRunner{})
	h, _ := reg.Lookup(TaskSendMessage)

	msg := entity.MessageSendScheduled{User: entity.User{ID: 9}, Text: "x"}
	if err := h(context.Background(), mustPayload(t, msg)); !errors.Is(err, boom) {
		t.Fatalf("handler = %v, want %v", err, boom)
	}
}

func TestDeleteMessageHandler(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	reg := builtinRegistry(t, ft, &fakeRunner{})
	h, _ := reg.Lookup(TaskDeleteMessage)

	msg := entity.MessageDeletionScheduled{ID: 123, User: entity.User{ID: 7}}
	if err := h(context.Background(), mustPayload(t, msg)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(ft.deleted) != 1 || ft.deleted[0] != 123 {
		t.Fatalf("unexpected deletions: %v", ft.deleted)
	}
}

func TestStartMailingHandler(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{}
	reg := builtinRegistry(t, &fakeTransport{}, fr)
	h, _ := reg.Lookup(TaskStartMailing)

	sm := entity.ScheduledMailing{
		Mailing: entity.Mailing{
			ID:      uuid.New(),
			Message: entity.MailingMessage{Text: "broadcast"},
		},
		Scheduled: entity.Scheduled{ScheduledTime: time.Now().UTC()},
	}
	if err := h(context.Background(), mustPayload(t, sm)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(fr.got) != 1 || fr.got[0].ID != sm.ID {
		t.Fatalf("runner got %v, want mailing %s", fr.got, sm.ID)
	}
}

func TestHandlersRejectBadPayload(t *testing.T) {
	t.Parallel()

	reg := builtinRegistry(t, &fakeTransport{}, &fakeRunner{})
	for _, name := range []string{TaskSendMessage, TaskDeleteMessage, TaskStartMailing} {
		h, _ := reg.Lookup(name)
		if err := h(context.Background(), json.RawMessage("{oops")); err == nil {
			t.Errorf("task %q accepted a broken payload", name)
		}
	}
}
