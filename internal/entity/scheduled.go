package entity

import "time"

// Scheduled carries an absolute UTC execution time. Embed it in any entity
// that must be handed to the scheduler. Immutable once created.
type Scheduled struct {
	ScheduledTime time.Time `json:"scheduled_time"`
}

// ScheduledAt implements Schedulable.
func (s Scheduled) ScheduledAt() time.Time { return s.ScheduledTime }

// TimeCome reports whether the current UTC time is strictly past the
// scheduled time.
func (s Scheduled) TimeCome() bool {
	return time.Now().UTC().After(s.ScheduledTime)
}

// TimeLeft returns the duration until the scheduled time, clamped at zero
// once the time has passed.
func (s Scheduled) TimeLeft() time.Duration {
	d := time.Until(s.ScheduledTime)
	if d < 0 {
		return 0
	}
	return d
}

// Schedulable is anything carrying a future execution time.
type Schedulable interface {
	ScheduledAt() time.Time
}
