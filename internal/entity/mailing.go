package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// MediaType is the closed set of media content kinds a mailing can carry.
// The transport boundary switches exhaustively over it.
type MediaType string

const (
	MediaPhoto    MediaType = "photo"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
)

// Valid reports whether t is one of the known media kinds.
func (t MediaType) Valid() bool {
	switch t {
	case MediaPhoto, MediaVideo, MediaAudio, MediaDocument:
		return true
	}
	return false
}

// MailingMedia is an addressable media object attached to a mailing message.
type MailingMedia struct {
	Address string    `json:"address"`
	Type    MediaType `json:"type"`
}

// MailingMessage is the content broadcast to every recipient: text plus an
// optional media attachment (text becomes the caption).
type MailingMessage struct {
	Text  string        `json:"text"`
	Media *MailingMedia `json:"media,omitempty"`
}

// Mailing is a broadcast of one message to a set of recipients. Recipients
// are persisted as one durable broker record each, tagged with the mailing ID.
type Mailing struct {
	ID      uuid.UUID      `json:"id"`
	Creator User           `json:"creator"`
	Users   []User         `json:"users,omitempty"`
	Message MailingMessage `json:"message"`
}

// ScheduledMailing is a mailing bound to a future execution time. It is
// handed to the scheduler instead of being started immediately.
type ScheduledMailing struct {
	Mailing
	Scheduled
}

// Validate checks structural invariants before a mailing is persisted.
func (m Mailing) Validate() error {
	if m.ID == uuid.Nil {
		return fmt.Errorf("mailing: id is empty")
	}
	if m.Message.Text == "" && m.Message.Media == nil {
		return fmt.Errorf("mailing %s: message has no content", m.ID)
	}
	if m.Message.Media != nil && !m.Message.Media.Type.Valid() {
		return fmt.Errorf("mailing %s: unknown media type %q", m.ID, m.Message.Media.Type)
	}
	return nil
}
