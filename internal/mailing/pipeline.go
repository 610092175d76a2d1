package mailing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nezbut/tgmailer/internal/broker"
	"github.com/nezbut/tgmailer/internal/entity"
	"github.com/nezbut/tgmailer/internal/transport"
	"github.com/nezbut/tgmailer/pkg/logx"
)

type PipelineConfig struct {
	// FetchTimeout bounds each recipient fetch. A fetch that returns zero
	// records within this window means the mailing is drained.
	FetchTimeout time.Duration
	// DrainAll sizes one big fetch from the outstanding record count
	// instead of fetching one record at a time.
	DrainAll bool
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
	return c
}

// Pipeline drains one mailing's recipient stream: fetch a record, decode the
// recipient, deliver through the bot transport, and resolve the record
// individually. Recipients are processed strictly sequentially; one
// recipient's failure never aborts the rest of the mailing.
type Pipeline struct {
	cfg       PipelineConfig
	broker    Broker
	transport transport.Transport
	log       logx.Logger
}

func NewPipeline(cfg PipelineConfig, b Broker, t transport.Transport, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{
		cfg:       cfg.withDefaults(),
		broker:    b,
		transport: t,
		log:       log.With(logx.String("comp", "mailing.pipeline")),
	}
}

// Run drains the mailing. It returns nil once the stream is exhausted;
// an error only for infrastructure failures (broker unreachable), which the
// task layer turns into a redelivery.
func (p *Pipeline) Run(ctx context.Context, mail entity.Mailing) error {
	id := mail.ID.String()
	log := p.log.With(logx.String("mailing_id", id))
	start := time.Now()

	var sent, skipped, delayed int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := p.fetchBatch(ctx, id)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			if err := p.broker.ReleaseMailing(ctx, id); err != nil {
				log.Warn("release mailing consumer failed", logx.Err(err))
			}
			log.Info("mailing drained",
				logx.Int("sent", sent),
				logx.Int("skipped", skipped),
				logx.Int("rate_delayed", delayed),
				logx.Duration("took", time.Since(start)))
			return nil
		}

		for _, rec := range batch {
			switch p.deliver(ctx, log, mail, rec) {
			case outcomeSent:
				sent++
			case outcomeSkipped:
				skipped++
			case outcomeDelayed:
				delayed++
			}
		}
	}
}

func (p *Pipeline) fetchBatch(ctx context.Context, mailingID string) ([]broker.Record, error) {
	batch := 1
	if p.cfg.DrainAll {
		n, err := p.broker.Outstanding(ctx, mailingID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			batch = n
		}
	}
	return p.broker.FetchMailing(ctx, mailingID, batch, p.cfg.FetchTimeout)
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSkipped
	outcomeDelayed
)

// deliver resolves exactly one recipient record. Classification order:
// rate-limited (nak with the demanded delay), unreachable (ack, skip),
// success (ack). Any other failure acks too, so a poison record cannot
// stall the mailing forever.
func (p *Pipeline) deliver(ctx context.Context, log logx.Logger, mail entity.Mailing, rec broker.Record) outcome {
	var user entity.User
	if err := json.Unmarshal(rec.Data(), &user); err != nil {
		log.Error("undecodable recipient record, dropping", logx.Err(err))
		p.ack(log, rec)
		return outcomeSkipped
	}

	err := p.send(ctx, mail.Message, user)
	if after, ok := transport.RetryAfter(err); ok {
		log.Warn("rate limited, delaying recipient",
			logx.Int64("user_id", user.ID),
			logx.Duration("retry_after", after))
		if nakErr := rec.Nak(after); nakErr != nil {
			log.Error("nak failed", logx.Int64("user_id", user.ID), logx.Err(nakErr))
		}
		return outcomeDelayed
	}
	switch {
	case transport.IsForbidden(err):
		log.Debug("recipient unreachable, skipping", logx.Int64("user_id", user.ID))
		p.ack(log, rec)
		return outcomeSkipped
	case err != nil:
		log.Warn("send failed, not retrying",
			logx.Int64("user_id", user.ID), logx.Err(err))
		p.ack(log, rec)
		return outcomeSkipped
	}

	p.ack(log, rec)
	return outcomeSent
}

func (p *Pipeline) send(ctx context.Context, msg entity.MailingMessage, user entity.User) error {
	if msg.Media == nil {
		return p.transport.SendText(ctx, user.ID, msg.Text)
	}
	return p.transport.SendMedia(ctx, user.ID, msg.Media.Type, msg.Media.Address, msg.Text)
}

func (p *Pipeline) ack(log logx.Logger, rec broker.Record) {
	if err := rec.Ack(); err != nil {
		log.Error("ack failed", logx.Err(err))
	}
}
