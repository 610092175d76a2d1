package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nezbut/tgmailer/internal/tasks"
	"github.com/nezbut/tgmailer/pkg/logx"
)

type captSpec struct {
	subject string
	data    []byte
	header  map[string]string
}

type fakePublisher struct {
	mu        sync.Mutex
	published []captSpec
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data []byte, header map[string]string) error {
	f.mu.Lock()
	f.published = append(f.published, captSpec{subject: subject, data: data, header: header})
	f.mu.Unlock()
	return nil
}

func TestDispatcherFiresDue(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	pub := &fakePublisher{}
	d, err := NewDispatcher(DispatcherConfig{TickSpec: "1s", Subject: "tgmailer.tasks.dispatch"}, store, pub, logx.Nop())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	past := Record{
		ID:            "sched-1",
		Task:          tasks.TaskSendMessage,
		Payload:       json.RawMessage(`{"text":"hi"}`),
		ExecutionTime: time.Now().UTC().Add(-time.Minute),
	}
	future := Record{
		ID:            "sched-2",
		Task:          tasks.TaskSendMessage,
		Payload:       json.RawMessage(`{}`),
		ExecutionTime: time.Now().UTC().Add(time.Hour),
	}
	store.records = []Record{past, future}

	d.processDue(context.Background())

	if len(pub.published) != 1 {
		t.Fatalf("published %d invocations, want 1", len(pub.published))
	}
	got := pub.published[0]
	if got.subject != "tgmailer.tasks.dispatch" {
		t.Fatalf("subject = %q", got.subject)
	}
	var inv tasks.Invocation
	if err := json.Unmarshal(got.data, &inv); err != nil {
		t.Fatalf("unmarshal invocation: %v", err)
	}
	if inv.ScheduleID != "sched-1" || inv.Task != tasks.TaskSendMessage {
		t.Fatalf("invocation = %+v", inv)
	}
	if string(inv.Payload) != `{"text":"hi"}` {
		t.Fatalf("payload = %s", inv.Payload)
	}

	// The future record must still be pending.
	if len(store.records) != 1 || store.records[0].ID != "sched-2" {
		t.Fatalf("pending records = %+v", store.records)
	}

	// A second tick at the same instant finds nothing: the claim removed it.
	d.processDue(context.Background())
	if len(pub.published) != 1 {
		t.Fatalf("published %d invocations after second tick, want 1", len(pub.published))
	}
}

func TestDispatcherStartStop(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	pub := &fakePublisher{}
	d, err := NewDispatcher(DispatcherConfig{TickSpec: "10ms", Subject: "s"}, store, pub, logx.Nop())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	store.mu.Lock()
	store.records = []Record{{
		ID:            "sched-3",
		Task:          tasks.TaskDeleteMessage,
		ExecutionTime: time.Now().UTC().Add(-time.Second),
	}}
	store.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for {
		pub.mu.Lock()
		n := len(pub.published)
		pub.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("dispatcher never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Start returned %v", err)
	}
}
