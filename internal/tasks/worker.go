package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nezbut/tgmailer/internal/broker"
	"github.com/nezbut/tgmailer/pkg/logx"
)

// Fetcher is the broker's task-consumption side.
type Fetcher interface {
	FetchTasks(ctx context.Context, batch int, maxWait time.Duration) ([]broker.Record, error)
}

type WorkerConfig struct {
	// Batch caps how many invocations one fetch pulls.
	Batch int
	// FetchTimeout bounds each fetch when the stream is idle.
	FetchTimeout time.Duration
	// FetchBackoff is the pause after a failed fetch.
	FetchBackoff time.Duration
	// RetryDelay paces redelivery of a failed invocation. It should track
	// the broker's ack-wait window so a dead downstream does not turn into
	// a fetch/nak busy loop.
	RetryDelay time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Batch <= 0 {
		c.Batch = 1
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
	if c.FetchBackoff <= 0 {
		c.FetchBackoff = time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	return c
}

// Worker pulls task invocations off the tasks stream and runs the registered
// handler for each. A handler error naks the invocation for delayed redelivery; an
// unknown task name or undecodable payload is acked and dropped so it cannot
// poison the stream.
type Worker struct {
	cfg      WorkerConfig
	fetcher  Fetcher
	registry *Registry
	log      logx.Logger

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewWorker(cfg WorkerConfig, f Fetcher, reg *Registry, log logx.Logger) *Worker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Worker{
		cfg:       cfg.withDefaults(),
		fetcher:   f,
		registry:  reg,
		log:       log.With(logx.String("comp", "tasks.worker")),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start runs the consume loop. It blocks until the context is cancelled or
// Stop is called; run it in its own goroutine.
func (w *Worker) Start(ctx context.Context) error {
	w.log.Info("task worker started", logx.Any("tasks", w.registry.Names()))
	defer close(w.stoppedCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		default:
		}

		recs, err := w.fetcher.FetchTasks(ctx, w.cfg.Batch, w.cfg.FetchTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("fetch tasks failed", logx.Err(err))
			select {
			case <-time.After(w.cfg.FetchBackoff):
			case <-ctx.Done():
				return ctx.Err()
			case <-w.stopCh:
				return nil
			}
			continue
		}
		for _, rec := range recs {
			w.handle(ctx, rec)
		}
	}
}

// Stop signals the loop to exit and waits for it.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stopCh)
	select {
	case <-w.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) handle(ctx context.Context, rec broker.Record) {
	var inv Invocation
	if err := json.Unmarshal(rec.Data(), &inv); err != nil {
		w.log.Error("undecodable invocation, dropping", logx.Err(err))
		w.ack(rec)
		return
	}
	log := w.log.With(
		logx.String("schedule_id", inv.ScheduleID),
		logx.String("task", inv.Task))

	h, ok := w.registry.Lookup(inv.Task)
	if !ok {
		log.Error("unknown task, dropping")
		w.ack(rec)
		return
	}

	start := time.Now()
	if err := h(ctx, inv.Payload); err != nil {
		log.Warn("task failed, redelivering", logx.Err(err), logx.Duration("retry_in", w.cfg.RetryDelay))
		if nakErr := rec.Nak(w.cfg.RetryDelay); nakErr != nil {
			log.Error("nak failed", logx.Err(nakErr))
		}
		return
	}
	log.Debug("task done", logx.Duration("took", time.Since(start)))
	w.ack(rec)
}

func (w *Worker) ack(rec broker.Record) {
	if err := rec.Ack(); err != nil {
		w.log.Error("ack failed", logx.Err(err))
	}
}
