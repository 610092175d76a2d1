package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/nezbut/tgmailer/pkg/logx"
)

type Config struct {
	URL  string
	Name string

	TasksStream  string
	TasksSubject string
	// TasksDurable is the shared durable consumer all workers compete on.
	TasksDurable string
	// AckWait is how long the broker waits for an ack before redelivering.
	AckWait time.Duration

	MailingsStream        string
	MailingsSubjectPrefix string

	// MaxAge bounds how long unconsumed records survive.
	MaxAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Name == "" {
		c.Name = "tgmailer"
	}
	if c.TasksStream == "" {
		c.TasksStream = "TGMAILER_TASKS"
	}
	if c.TasksSubject == "" {
		c.TasksSubject = "tgmailer.tasks.dispatch"
	}
	if c.TasksDurable == "" {
		c.TasksDurable = "tgmailer-task-workers"
	}
	if c.AckWait <= 0 {
		c.AckWait = 30 * time.Second
	}
	if c.MailingsStream == "" {
		c.MailingsStream = "TGMAILER_MAILINGS"
	}
	if c.MailingsSubjectPrefix == "" {
		c.MailingsSubjectPrefix = "tgmailer.mailings"
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 7 * 24 * time.Hour
	}
	return c
}

// Client owns the NATS connection and the two JetStream streams.
// Construct once at process start and pass by handle; Close on shutdown.
type Client struct {
	cfg Config
	log logx.Logger

	nc *nats.Conn
	js jetstream.JetStream

	tasks    jetstream.Stream
	mailings jetstream.Stream

	mu        sync.Mutex
	tasksCons jetstream.Consumer
	mailCons  map[string]jetstream.Consumer
}

// Connect dials NATS, sets up JetStream, and ensures both streams exist.
func Connect(ctx context.Context, cfg Config, log logx.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	c := &Client{
		cfg:      cfg,
		log:      log.With(logx.String("comp", "broker")),
		nc:       nc,
		js:       js,
		mailCons: map[string]jetstream.Consumer{},
	}
	if err := c.ensureStreams(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	c.log.Info("connected",
		logx.String("url", nc.ConnectedUrl()),
		logx.String("tasks_stream", cfg.TasksStream),
		logx.String("mailings_stream", cfg.MailingsStream))
	return c, nil
}

func (c *Client) ensureStreams(ctx context.Context) error {
	tasks, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      c.cfg.TasksStream,
		Subjects:  []string{c.cfg.TasksSubject},
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    c.cfg.MaxAge,
	})
	if err != nil {
		return fmt.Errorf("ensure tasks stream: %w", err)
	}
	c.tasks = tasks

	mailings, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      c.cfg.MailingsStream,
		Subjects:  []string{c.cfg.MailingsSubjectPrefix + ".>"},
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    c.cfg.MaxAge,
	})
	if err != nil {
		return fmt.Errorf("ensure mailings stream: %w", err)
	}
	c.mailings = mailings
	return nil
}

// Close drains the connection. Safe to call once after all consumers stopped.
func (c *Client) Close() {
	if c.nc != nil && !c.nc.IsClosed() {
		c.nc.Close()
	}
}

// TasksSubject returns the subject task invocations are published to.
func (c *Client) TasksSubject() string { return c.cfg.TasksSubject }

// MailingSubject returns the per-mailing recipient subject.
func (c *Client) MailingSubject(mailingID string) string {
	return c.cfg.MailingsSubjectPrefix + "." + mailingID
}

// Publish writes one durable record with optional headers.
func (c *Client) Publish(ctx context.Context, subject string, data []byte, header map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data}
	if len(header) > 0 {
		msg.Header = nats.Header{}
		for k, v := range header {
			msg.Header.Set(k, v)
		}
	}
	if _, err := c.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// FetchTasks pulls up to batch task invocations, waiting at most maxWait.
// A timeout with nothing pending returns an empty slice, not an error.
func (c *Client) FetchTasks(ctx context.Context, batch int, maxWait time.Duration) ([]Record, error) {
	c.mu.Lock()
	cons := c.tasksCons
	c.mu.Unlock()
	if cons == nil {
		created, err := c.tasks.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
			Durable:       c.cfg.TasksDurable,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       c.cfg.AckWait,
			FilterSubject: c.cfg.TasksSubject,
		})
		if err != nil {
			return nil, fmt.Errorf("tasks consumer: %w", err)
		}
		c.mu.Lock()
		c.tasksCons = created
		cons = created
		c.mu.Unlock()
	}
	return fetch(cons, batch, maxWait)
}

// FetchMailing pulls up to batch recipient records for one mailing.
func (c *Client) FetchMailing(ctx context.Context, mailingID string, batch int, maxWait time.Duration) ([]Record, error) {
	c.mu.Lock()
	cons := c.mailCons[mailingID]
	c.mu.Unlock()
	if cons == nil {
		created, err := c.mailings.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
			Durable:       "mailing-" + mailingID,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       c.cfg.AckWait,
			FilterSubject: c.MailingSubject(mailingID),
		})
		if err != nil {
			return nil, fmt.Errorf("mailing consumer %s: %w", mailingID, err)
		}
		c.mu.Lock()
		c.mailCons[mailingID] = created
		cons = created
		c.mu.Unlock()
	}
	return fetch(cons, batch, maxWait)
}

// Outstanding reports how many recipient records remain for a mailing.
func (c *Client) Outstanding(ctx context.Context, mailingID string) (int, error) {
	subj := c.MailingSubject(mailingID)
	info, err := c.mailings.Info(ctx, jetstream.WithSubjectFilter(subj))
	if err != nil {
		return 0, fmt.Errorf("mailings stream info: %w", err)
	}
	return int(info.State.Subjects[subj]), nil
}

// Purge drops every remaining recipient record of a mailing and releases
// its consumer.
func (c *Client) Purge(ctx context.Context, mailingID string) error {
	if err := c.mailings.Purge(ctx, jetstream.WithPurgeSubject(c.MailingSubject(mailingID))); err != nil {
		return fmt.Errorf("purge mailing %s: %w", mailingID, err)
	}
	return c.ReleaseMailing(ctx, mailingID)
}

// ReleaseMailing deletes a mailing's durable consumer once the mailing is
// drained or purged. Without it the per-mailing consumers pile up on the
// stream for the life of the server. A consumer that is already gone is
// not an error.
func (c *Client) ReleaseMailing(ctx context.Context, mailingID string) error {
	c.mu.Lock()
	delete(c.mailCons, mailingID)
	c.mu.Unlock()

	err := c.mailings.DeleteConsumer(ctx, "mailing-"+mailingID)
	if err != nil && !errors.Is(err, jetstream.ErrConsumerNotFound) {
		return fmt.Errorf("delete mailing consumer %s: %w", mailingID, err)
	}
	return nil
}

func fetch(cons jetstream.Consumer, batch int, maxWait time.Duration) ([]Record, error) {
	if batch <= 0 {
		batch = 1
	}
	mb, err := cons.Fetch(batch, jetstream.FetchMaxWait(maxWait))
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	var recs []Record
	for msg := range mb.Messages() {
		recs = append(recs, jsRecord{msg: msg})
	}
	if err := mb.Error(); err != nil {
		return recs, fmt.Errorf("fetch batch: %w", err)
	}
	return recs, nil
}
