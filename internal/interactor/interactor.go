package interactor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nezbut/tgmailer/internal/entity"
)

// MailingStore is the mailing lifecycle as the use cases consume it.
type MailingStore interface {
	Create(ctx context.Context, creator entity.User, message entity.MailingMessage, users []entity.User) (entity.Mailing, error)
	Remove(ctx context.Context, mail entity.Mailing) error
	Outstanding(ctx context.Context, mail entity.Mailing) (int, error)
}

// MailingRunner drains one mailing immediately.
type MailingRunner interface {
	Run(ctx context.Context, mail entity.Mailing) error
}

// Scheduler is the scheduling surface the use cases consume.
type Scheduler interface {
	ScheduleSendMessage(ctx context.Context, msg entity.MessageSendScheduled) (string, error)
	ScheduleDeleteMessage(ctx context.Context, msg entity.MessageDeletionScheduled) (string, error)
	ScheduleMailing(ctx context.Context, m entity.ScheduledMailing) (string, error)
}

// UserStore is the user repository surface the use cases consume.
type UserStore interface {
	Upsert(ctx context.Context, user entity.User) (entity.User, error)
	GetByID(ctx context.Context, id int64) (entity.User, error)
	GetAll(ctx context.Context, ids ...int64) ([]entity.User, error)
	Count(ctx context.Context) (int, error)
}

// Mailings bundles the mailing use cases: create a broadcast for a recipient
// set, start it now or at a future time, inspect or remove it.
type Mailings struct {
	store     MailingStore
	runner    MailingRunner
	scheduler Scheduler
	users     UserStore
}

func NewMailings(store MailingStore, runner MailingRunner, scheduler Scheduler, users UserStore) *Mailings {
	return &Mailings{store: store, runner: runner, scheduler: scheduler, users: users}
}

// Create builds a mailing addressed to the given users, or to every known
// user when no ids are passed, and persists its recipient stream.
func (m *Mailings) Create(ctx context.Context, creator entity.User, message entity.MailingMessage, userIDs ...int64) (entity.Mailing, error) {
	users, err := m.users.GetAll(ctx, userIDs...)
	if err != nil {
		return entity.Mailing{}, err
	}
	return m.store.Create(ctx, creator, message, users)
}

// Start drains the mailing right away.
func (m *Mailings) Start(ctx context.Context, mail entity.Mailing) error {
	return m.runner.Run(ctx, mail)
}

// Schedule defers the mailing start to at.
func (m *Mailings) Schedule(ctx context.Context, mail entity.Mailing, at time.Time) (string, error) {
	return m.scheduler.ScheduleMailing(ctx, entity.ScheduledMailing{
		Mailing:   mail,
		Scheduled: entity.Scheduled{ScheduledTime: at.UTC()},
	})
}

// Remove purges the mailing's remaining recipient records.
func (m *Mailings) Remove(ctx context.Context, mail entity.Mailing) error {
	return m.store.Remove(ctx, mail)
}

// Outstanding reports how many recipients of the mailing are still queued.
func (m *Mailings) Outstanding(ctx context.Context, mail entity.Mailing) (int, error) {
	return m.store.Outstanding(ctx, mail)
}

// Messages bundles the single-message use cases.
type Messages struct {
	scheduler Scheduler
}

func NewMessages(scheduler Scheduler) *Messages {
	return &Messages{scheduler: scheduler}
}

// ScheduleSend defers a text message to user until at.
func (m *Messages) ScheduleSend(ctx context.Context, user entity.User, text string, at time.Time) (string, error) {
	return m.scheduler.ScheduleSendMessage(ctx, entity.MessageSendScheduled{
		ID:        uuid.NewString(),
		User:      user,
		Text:      text,
		Scheduled: entity.Scheduled{ScheduledTime: at.UTC()},
	})
}

// ScheduleDeletion defers removal of messageID from user's chat until at.
func (m *Messages) ScheduleDeletion(ctx context.Context, user entity.User, messageID int, at time.Time) (string, error) {
	return m.scheduler.ScheduleDeleteMessage(ctx, entity.MessageDeletionScheduled{
		ID:        messageID,
		User:      user,
		Scheduled: entity.Scheduled{ScheduledTime: at.UTC()},
	})
}

// Users bundles the user bookkeeping use cases.
type Users struct {
	store UserStore
}

func NewUsers(store UserStore) *Users {
	return &Users{store: store}
}

// Observe records an interaction with user: inserted on first contact,
// profile fields refreshed afterwards.
func (u *Users) Observe(ctx context.Context, user entity.User) (entity.User, error) {
	return u.store.Upsert(ctx, user)
}

// Get looks one user up.
func (u *Users) Get(ctx context.Context, id int64) (entity.User, error) {
	return u.store.GetByID(ctx, id)
}

// Count reports the audience size.
func (u *Users) Count(ctx context.Context) (int, error) {
	return u.store.Count(ctx)
}
