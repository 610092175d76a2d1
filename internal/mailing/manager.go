package mailing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nezbut/tgmailer/internal/broker"
	"github.com/nezbut/tgmailer/internal/entity"
	"github.com/nezbut/tgmailer/pkg/logx"
)

// Broker is the slice of the broker client the mailing side needs.
type Broker interface {
	Publish(ctx context.Context, subject string, data []byte, header map[string]string) error
	FetchMailing(ctx context.Context, mailingID string, batch int, maxWait time.Duration) ([]broker.Record, error)
	Outstanding(ctx context.Context, mailingID string) (int, error)
	Purge(ctx context.Context, mailingID string) error
	ReleaseMailing(ctx context.Context, mailingID string) error
	MailingSubject(mailingID string) string
}

// Manager owns the mailing lifecycle: create persists one recipient record
// per user onto the broker stream; remove purges whatever is left.
type Manager struct {
	broker Broker
	log    logx.Logger
}

func NewManager(b Broker, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{broker: b, log: log.With(logx.String("comp", "mailing.manager"))}
}

// Create builds a mailing from the message and recipient set, generating its
// id, and persists the recipient stream. The returned mailing carries the
// recipient list only as a convenience for the caller; delivery reads the
// broker stream, never this slice.
func (m *Manager) Create(ctx context.Context, creator entity.User, message entity.MailingMessage, users []entity.User) (entity.Mailing, error) {
	mail := entity.Mailing{
		ID:      uuid.New(),
		Creator: creator,
		Users:   users,
		Message: message,
	}
	if err := mail.Validate(); err != nil {
		return entity.Mailing{}, err
	}
	if err := m.Save(ctx, mail); err != nil {
		return entity.Mailing{}, err
	}
	return mail, nil
}

// Save publishes one durable record per recipient, tagged with the mailing id.
func (m *Manager) Save(ctx context.Context, mail entity.Mailing) error {
	id := mail.ID.String()
	subject := m.broker.MailingSubject(id)
	header := map[string]string{broker.HeaderMailingID: id}

	for _, user := range mail.Users {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshal recipient %d: %w", user.ID, err)
		}
		if err := m.broker.Publish(ctx, subject, data, header); err != nil {
			return fmt.Errorf("persist recipient %d of mailing %s: %w", user.ID, id, err)
		}
	}
	m.log.Info("mailing saved",
		logx.String("mailing_id", id),
		logx.Int("recipients", len(mail.Users)))
	return nil
}

// Remove deletes every remaining recipient record of the mailing.
func (m *Manager) Remove(ctx context.Context, mail entity.Mailing) error {
	id := mail.ID.String()
	if err := m.broker.Purge(ctx, id); err != nil {
		return err
	}
	m.log.Info("mailing removed", logx.String("mailing_id", id))
	return nil
}

// Outstanding reports how many recipients have not been delivered yet.
func (m *Manager) Outstanding(ctx context.Context, mail entity.Mailing) (int, error) {
	return m.broker.Outstanding(ctx, mail.ID.String())
}
