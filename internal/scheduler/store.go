package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nezbut/tgmailer/pkg/logx"
)

// ErrStoreUnavailable wraps every reachability failure of the schedule
// store. Callers see the failure and retry at their own discretion; the
// scheduler itself never retries.
var ErrStoreUnavailable = errors.New("schedule store unavailable")

// Record is one pending schedule entry. The store owns it until the
// dispatcher claims it at firing time.
type Record struct {
	ID            string          `json:"id"`
	Task          string          `json:"task"`
	Payload       json.RawMessage `json:"payload"`
	ExecutionTime time.Time       `json:"execution_time"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Store is the durable home of pending schedules.
type Store interface {
	// Put persists one record. The record's ID must already be set.
	Put(ctx context.Context, rec Record) error
	// ClaimDue atomically removes and returns up to limit records whose
	// execution time is <= now, ordered by execution time ascending.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Record, error)
}

const defaultKeyPrefix = "tgmailer:schedule:"

// RedisStore keeps pending schedules in a sorted set, scored by execution
// unix time. Claiming uses ZREM as the mutual-exclusion point, so multiple
// dispatchers never fire the same record twice.
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
	log       logx.Logger
}

func NewRedisStore(client redis.Cmdable, keyPrefix string, log logx.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		log:       log.With(logx.String("comp", "schedule.store")),
	}
}

func (s *RedisStore) key() string { return s.keyPrefix + "pending" }

func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal schedule record: %w", err)
	}
	err = s.client.ZAdd(ctx, s.key(), redis.Z{
		Score:  float64(rec.ExecutionTime.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	s.log.Debug("schedule stored",
		logx.String("schedule_id", rec.ID),
		logx.String("task", rec.Task),
		logx.Time("execution_time", rec.ExecutionTime))
	return nil
}

func (s *RedisStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	members, err := s.client.ZRangeByScore(ctx, s.key(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.Unix()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	var due []Record
	for _, member := range members {
		removed, err := s.client.ZRem(ctx, s.key(), member).Result()
		if err != nil {
			return due, errors.Join(ErrStoreUnavailable, err)
		}
		if removed == 0 {
			// Another dispatcher claimed it first.
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(member), &rec); err != nil {
			s.log.Error("dropping corrupt schedule record", logx.Err(err))
			continue
		}
		due = append(due, rec)
	}
	return due, nil
}

var _ Store = (*RedisStore)(nil)
