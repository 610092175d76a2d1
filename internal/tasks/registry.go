package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Logical task names. Registered once at process start; the scheduler's
// convenience entry points bind to these, so callers never pick a task
// themselves.
const (
	TaskSendMessage   = "messages.send"
	TaskDeleteMessage = "messages.delete"
	TaskStartMailing  = "mailing.start"
)

// Handler executes one task invocation. A nil return acknowledges the
// invocation; an error hands it back to the broker for redelivery.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Invocation is the wire form of "run task X with payload Y", published by
// the dispatcher onto the tasks stream and consumed by a worker.
type Invocation struct {
	ScheduleID  string          `json:"schedule_id"`
	Task        string          `json:"task"`
	Payload     json.RawMessage `json:"payload"`
	ScheduledAt time.Time       `json:"scheduled_at"`
}

// Registry maps logical task names to handlers.
// Register everything before the worker starts; lookups are read-mostly.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register binds a handler under a stable logical name.
// Registering the same name twice is a programming error.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("register: empty task name")
	}
	if h == nil {
		return fmt.Errorf("register %s: nil handler", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[name]; dup {
		return fmt.Errorf("register %s: already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Lookup returns the handler for name, if registered.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered task names, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	return names
}
