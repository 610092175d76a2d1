package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nezbut/tgmailer/internal/broker"
	"github.com/nezbut/tgmailer/internal/mailing"
	"github.com/nezbut/tgmailer/internal/scheduler"
	"github.com/nezbut/tgmailer/internal/tasks"
	"github.com/nezbut/tgmailer/pkg/logx"
)

// Environment overrides for secrets. The config file is the fallback, so a
// deployment can keep credentials out of it entirely.
const (
	EnvBotToken    = "TGMAILER_BOT_TOKEN"
	EnvDatabaseDSN = "TGMAILER_DATABASE_DSN"
	EnvRedisAddr   = "TGMAILER_REDIS_ADDR"
)

// Config is the whole service configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Only the logging block is hot-reloadable; everything else requires a
// restart.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Broker    BrokerConfig    `json:"broker"`
	Redis     RedisConfig     `json:"redis"`
	Database  DatabaseConfig  `json:"database"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Worker    WorkerConfig    `json:"worker,omitempty"`
	Mailing   MailingConfig   `json:"mailing,omitempty"`
}

type TelegramConfig struct {
	// Token may be omitted when TGMAILER_BOT_TOKEN is set.
	Token string `json:"token,omitempty"`
	// RatePerSec caps outbound bot API calls. 0 means the default (25).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level,omitempty"`
	// Console is a pointer to distinguish "omitted" (default true) from an
	// explicit false.
	Console *bool             `json:"console,omitempty"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type BrokerConfig struct {
	URL                   string `json:"url,omitempty"`
	TasksStream           string `json:"tasks_stream,omitempty"`
	TasksSubject          string `json:"tasks_subject,omitempty"`
	TasksDurable          string `json:"tasks_durable,omitempty"`
	MailingsStream        string `json:"mailings_stream,omitempty"`
	MailingsSubjectPrefix string `json:"mailings_subject_prefix,omitempty"`
	AckWait               string `json:"ack_wait,omitempty"`
	MaxAge                string `json:"max_age,omitempty"`
}

type RedisConfig struct {
	Addr      string `json:"addr,omitempty"`
	DB        int    `json:"db,omitempty"`
	Password  string `json:"password,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

type DatabaseConfig struct {
	// DSN may be omitted when TGMAILER_DATABASE_DSN is set.
	DSN string `json:"dsn,omitempty"`
}

type SchedulerConfig struct {
	// Tick is a duration ("1s") or a cron expression ("*/5 * * * *").
	Tick string `json:"tick,omitempty"`
	// Batch caps how many due schedules one tick claims.
	Batch int `json:"batch,omitempty"`
}

type WorkerConfig struct {
	Batch        int    `json:"batch,omitempty"`
	FetchTimeout string `json:"fetch_timeout,omitempty"`
	FetchBackoff string `json:"fetch_backoff,omitempty"`
	RetryDelay   string `json:"retry_delay,omitempty"`
}

type MailingConfig struct {
	FetchTimeout string `json:"fetch_timeout,omitempty"`
	DrainAll     bool   `json:"drain_all,omitempty"`
}

// BotToken resolves the token, environment first.
func (c *Config) BotToken() string {
	if v := strings.TrimSpace(os.Getenv(EnvBotToken)); v != "" {
		return v
	}
	return strings.TrimSpace(c.Telegram.Token)
}

// DatabaseDSN resolves the Postgres DSN, environment first.
func (c *Config) DatabaseDSN() string {
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseDSN)); v != "" {
		return v
	}
	return strings.TrimSpace(c.Database.DSN)
}

// RedisAddr resolves the Redis address, environment first.
func (c *Config) RedisAddr() string {
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		return v
	}
	return strings.TrimSpace(c.Redis.Addr)
}

// Validate checks everything that can be checked without touching the
// network. Called on load and before a hot reload is committed.
func (c *Config) Validate() error {
	if c.BotToken() == "" {
		return fmt.Errorf("telegram.token: missing (set it or %s)", EnvBotToken)
	}
	if c.DatabaseDSN() == "" {
		return fmt.Errorf("database.dsn: missing (set it or %s)", EnvDatabaseDSN)
	}
	if c.Scheduler.Tick != "" {
		if _, err := scheduler.ParseTickSpec(c.Scheduler.Tick); err != nil {
			return fmt.Errorf("scheduler.tick: %w", err)
		}
	}
	for _, f := range []struct{ path, raw string }{
		{"broker.ack_wait", c.Broker.AckWait},
		{"broker.max_age", c.Broker.MaxAge},
		{"worker.fetch_timeout", c.Worker.FetchTimeout},
		{"worker.fetch_backoff", c.Worker.FetchBackoff},
		{"worker.retry_delay", c.Worker.RetryDelay},
		{"mailing.fetch_timeout", c.Mailing.FetchTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

// LogxConfig maps the logging block onto the logx service config.
func (c *Config) LogxConfig() logx.Config {
	console := true
	if c.Logging.Console != nil {
		console = *c.Logging.Console
	}
	return logx.Config{
		Level:   c.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// BrokerConfig maps the broker block onto the NATS client config.
// Zero fields keep the client defaults.
func (c *Config) BrokerConfig() (broker.Config, error) {
	ackWait, err := ParseDurationField("broker.ack_wait", c.Broker.AckWait)
	if err != nil {
		return broker.Config{}, err
	}
	maxAge, err := ParseDurationField("broker.max_age", c.Broker.MaxAge)
	if err != nil {
		return broker.Config{}, err
	}
	return broker.Config{
		URL:                   c.Broker.URL,
		TasksStream:           c.Broker.TasksStream,
		TasksSubject:          c.Broker.TasksSubject,
		TasksDurable:          c.Broker.TasksDurable,
		MailingsStream:        c.Broker.MailingsStream,
		MailingsSubjectPrefix: c.Broker.MailingsSubjectPrefix,
		AckWait:               ackWait,
		MaxAge:                maxAge,
	}, nil
}

// DispatcherConfig maps the scheduler block onto the dispatcher config.
// The publish subject comes from the broker block so the two cannot drift.
func (c *Config) DispatcherConfig(tasksSubject string) scheduler.DispatcherConfig {
	return scheduler.DispatcherConfig{
		TickSpec: c.Scheduler.Tick,
		Batch:    c.Scheduler.Batch,
		Subject:  tasksSubject,
	}
}

// WorkerConfig maps the worker block onto the task worker config.
func (c *Config) WorkerConfig() (tasks.WorkerConfig, error) {
	timeout, err := ParseDurationField("worker.fetch_timeout", c.Worker.FetchTimeout)
	if err != nil {
		return tasks.WorkerConfig{}, err
	}
	backoff, err := ParseDurationField("worker.fetch_backoff", c.Worker.FetchBackoff)
	if err != nil {
		return tasks.WorkerConfig{}, err
	}
	retry, err := ParseDurationField("worker.retry_delay", c.Worker.RetryDelay)
	if err != nil {
		return tasks.WorkerConfig{}, err
	}
	return tasks.WorkerConfig{
		Batch:        c.Worker.Batch,
		FetchTimeout: timeout,
		FetchBackoff: backoff,
		RetryDelay:   retry,
	}, nil
}

// PipelineConfig maps the mailing block onto the delivery pipeline config.
func (c *Config) PipelineConfig() (mailing.PipelineConfig, error) {
	timeout, err := ParseDurationField("mailing.fetch_timeout", c.Mailing.FetchTimeout)
	if err != nil {
		return mailing.PipelineConfig{}, err
	}
	return mailing.PipelineConfig{
		FetchTimeout: timeout,
		DrainAll:     c.Mailing.DrainAll,
	}, nil
}

// ParseDurationField parses an optional duration string. Empty means zero
// (the consumer's default); negative values are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
