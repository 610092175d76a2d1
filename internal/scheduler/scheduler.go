package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nezbut/tgmailer/internal/entity"
	"github.com/nezbut/tgmailer/internal/tasks"
	"github.com/nezbut/tgmailer/pkg/logx"
)

// Scheduler persists scheduled entities into the Store, bound to a logical
// task name. Every call yields a fresh schedule id, even for identical
// entities. Execution times in the past are accepted; the dispatcher fires
// them on its next tick.
type Scheduler struct {
	store Store
	log   logx.Logger
}

func New(store Store, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{store: store, log: log.With(logx.String("comp", "scheduler"))}
}

// Schedule serializes the entity and writes one durable record keyed by its
// execution time. Returns the schedule id, stable for the lifetime of the
// pending schedule.
func (s *Scheduler) Schedule(ctx context.Context, e entity.Schedulable, task string) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal scheduled entity: %w", err)
	}
	rec := Record{
		ID:            uuid.NewString(),
		Task:          task,
		Payload:       payload,
		ExecutionTime: e.ScheduledAt().UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return "", err
	}
	s.log.Info("scheduled",
		logx.String("schedule_id", rec.ID),
		logx.String("task", task),
		logx.Time("execution_time", rec.ExecutionTime))
	return rec.ID, nil
}

// ScheduleSendMessage binds a scheduled single-message send to the send task.
func (s *Scheduler) ScheduleSendMessage(ctx context.Context, msg entity.MessageSendScheduled) (string, error) {
	return s.Schedule(ctx, msg, tasks.TaskSendMessage)
}

// ScheduleDeleteMessage binds a scheduled message deletion to the delete task.
func (s *Scheduler) ScheduleDeleteMessage(ctx context.Context, msg entity.MessageDeletionScheduled) (string, error) {
	return s.Schedule(ctx, msg, tasks.TaskDeleteMessage)
}

// ScheduleMailing binds a scheduled mailing to the mailing-start task.
func (s *Scheduler) ScheduleMailing(ctx context.Context, m entity.ScheduledMailing) (string, error) {
	return s.Schedule(ctx, m, tasks.TaskStartMailing)
}
