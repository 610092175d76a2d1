package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nezbut/tgmailer/internal/entity"
	"github.com/nezbut/tgmailer/internal/tasks"
	"github.com/nezbut/tgmailer/pkg/logx"
)

type fakeStore struct {
	mu      sync.Mutex
	records []Record
	putErr  error
}

func (f *fakeStore) Put(_ context.Context, rec Record) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.mu.Lock()
	f.records = append(f.records, rec)
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due, rest []Record
	for _, rec := range f.records {
		if !rec.ExecutionTime.After(now) && len(due) < limit {
			due = append(due, rec)
		} else {
			rest = append(rest, rec)
		}
	}
	f.records = rest
	return due, nil
}

func sendAt(at time.Time) entity.MessageSendScheduled {
	return entity.MessageSendScheduled{
		Scheduled: entity.Scheduled{ScheduledTime: at},
		ID:        "msg-1",
		User:      entity.User{ID: 7, FirstName: "Bob"},
		Text:      "hello",
	}
}

func TestScheduleDistinctIDs(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	s := New(store, logx.Nop())

	at := time.Now().UTC().Add(time.Hour)
	id1, err := s.Schedule(context.Background(), sendAt(at), tasks.TaskSendMessage)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	id2, err := s.Schedule(context.Background(), sendAt(at), tasks.TaskSendMessage)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if id1 == "" || id1 == id2 {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", id1, id2)
	}
	if len(store.records) != 2 {
		t.Fatalf("stored records = %d, want 2", len(store.records))
	}
}

func TestSchedulePersistsEntity(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	s := New(store, logx.Nop())

	at := time.Date(2031, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := sendAt(at)
	id, err := s.ScheduleSendMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("ScheduleSendMessage: %v", err)
	}

	rec := store.records[0]
	if rec.ID != id {
		t.Fatalf("record id %q != returned id %q", rec.ID, id)
	}
	if rec.Task != tasks.TaskSendMessage {
		t.Fatalf("task = %q, want %q", rec.Task, tasks.TaskSendMessage)
	}
	if !rec.ExecutionTime.Equal(at) {
		t.Fatalf("execution time = %v, want %v", rec.ExecutionTime, at)
	}

	var got entity.MessageSendScheduled
	if err := json.Unmarshal(rec.Payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Fatalf("payload round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduleTaskBinding(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	s := New(store, logx.Nop())
	ctx := context.Background()
	at := time.Now().UTC().Add(time.Minute)

	if _, err := s.ScheduleSendMessage(ctx, sendAt(at)); err != nil {
		t.Fatal(err)
	}
	del := entity.MessageDeletionScheduled{
		Scheduled: entity.Scheduled{ScheduledTime: at},
		ID:        42,
		User:      entity.User{ID: 7},
	}
	if _, err := s.ScheduleDeleteMessage(ctx, del); err != nil {
		t.Fatal(err)
	}
	sm := entity.ScheduledMailing{
		Scheduled: entity.Scheduled{ScheduledTime: at},
	}
	sm.Mailing.Message.Text = "hi all"
	if _, err := s.ScheduleMailing(ctx, sm); err != nil {
		t.Fatal(err)
	}

	want := []string{tasks.TaskSendMessage, tasks.TaskDeleteMessage, tasks.TaskStartMailing}
	for i, rec := range store.records {
		if rec.Task != want[i] {
			t.Fatalf("record %d task = %q, want %q", i, rec.Task, want[i])
		}
	}
}

func TestScheduleStoreFailureSurfaces(t *testing.T) {
	t.Parallel()
	store := &fakeStore{putErr: errors.Join(ErrStoreUnavailable, errors.New("dial tcp: refused"))}
	s := New(store, logx.Nop())

	_, err := s.ScheduleSendMessage(context.Background(), sendAt(time.Now().UTC()))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}
