package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nezbut/tgmailer/internal/tasks"
	"github.com/nezbut/tgmailer/pkg/logx"
)

// Publisher is the broker's publish side, as consumed by the dispatcher.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, header map[string]string) error
}

type DispatcherConfig struct {
	// TickSpec is a duration or cron expression (see ParseTickSpec).
	TickSpec string
	// Batch caps how many due records one tick claims.
	Batch int
	// Subject is the tasks-stream subject invocations are published to.
	Subject string
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.TickSpec == "" {
		c.TickSpec = "1s"
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
	return c
}

// Dispatcher claims due schedule records on each tick and publishes one task
// invocation per record. Claim happens before publish; if the process dies
// between the two the record is lost. That at-most-once window is accepted
// at this layer, execution-side reliability comes from broker ack/nak.
type Dispatcher struct {
	cfg   DispatcherConfig
	tick  TickSpec
	store Store
	pub   Publisher
	log   logx.Logger

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewDispatcher(cfg DispatcherConfig, store Store, pub Publisher, log logx.Logger) (*Dispatcher, error) {
	cfg = cfg.withDefaults()
	tick, err := ParseTickSpec(cfg.TickSpec)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:       cfg,
		tick:      tick,
		store:     store,
		pub:       pub,
		log:       log.With(logx.String("comp", "dispatcher")),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}, nil
}

// Start runs the polling loop. It blocks until the context is cancelled or
// Stop is called; run it in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.log.Info("dispatcher started",
		logx.String("tick", d.cfg.TickSpec),
		logx.Int("batch", d.cfg.Batch),
		logx.String("subject", d.cfg.Subject))
	defer close(d.stoppedCh)

	timer := time.NewTimer(time.Until(d.tick.Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopCh:
			return nil
		case <-timer.C:
			d.processDue(ctx)
			timer.Reset(time.Until(d.tick.Next(time.Now())))
		}
	}
}

// Stop signals the loop to exit and waits for it.
func (d *Dispatcher) Stop(ctx context.Context) error {
	close(d.stopCh)
	select {
	case <-d.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) processDue(ctx context.Context) {
	due, err := d.store.ClaimDue(ctx, time.Now().UTC(), d.cfg.Batch)
	if err != nil {
		d.log.Error("claim due schedules failed", logx.Err(err))
		return
	}
	for _, rec := range due {
		inv := tasks.Invocation{
			ScheduleID:  rec.ID,
			Task:        rec.Task,
			Payload:     rec.Payload,
			ScheduledAt: rec.ExecutionTime,
		}
		data, err := json.Marshal(inv)
		if err != nil {
			d.log.Error("marshal invocation failed",
				logx.String("schedule_id", rec.ID), logx.Err(err))
			continue
		}
		if err := d.pub.Publish(ctx, d.cfg.Subject, data, nil); err != nil {
			// The record is already claimed; this invocation is lost.
			d.log.Error("publish invocation failed, schedule lost",
				logx.String("schedule_id", rec.ID),
				logx.String("task", rec.Task),
				logx.Err(err))
			continue
		}
		d.log.Debug("dispatched",
			logx.String("schedule_id", rec.ID),
			logx.String("task", rec.Task),
			logx.Time("execution_time", rec.ExecutionTime))
	}
}
