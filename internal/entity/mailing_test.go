package entity

import (
	"testing"

	"github.com/google/uuid"
)

func TestMediaTypeValid(t *testing.T) {
	t.Parallel()
	for _, mt := range []MediaType{MediaPhoto, MediaVideo, MediaAudio, MediaDocument} {
		if !mt.Valid() {
			t.Fatalf("%q should be valid", mt)
		}
	}
	if MediaType("sticker").Valid() {
		t.Fatal("unknown media type reported valid")
	}
}

func TestMailingValidate(t *testing.T) {
	t.Parallel()
	m := Mailing{ID: uuid.New(), Message: MailingMessage{Text: "hi"}}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	m.ID = uuid.Nil
	if err := m.Validate(); err == nil {
		t.Fatal("expected error for nil id")
	}

	m.ID = uuid.New()
	m.Message.Media = &MailingMedia{Address: "file-id", Type: "sticker"}
	if err := m.Validate(); err == nil {
		t.Fatal("expected error for unknown media type")
	}

	m.Message = MailingMessage{}
	if err := m.Validate(); err == nil {
		t.Fatal("expected error for empty message")
	}
}
