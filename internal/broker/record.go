package broker

import (
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// HeaderMailingID tags every recipient record with its mailing.
const HeaderMailingID = "Mailing-Id"

// Record is one durable broker message. Ack removes it for good; Nak makes
// it eligible for redelivery, no earlier than the given delay.
type Record interface {
	Data() []byte
	Header(key string) string
	Ack() error
	Nak(delay time.Duration) error
}

type jsRecord struct {
	msg jetstream.Msg
}

func (r jsRecord) Data() []byte { return r.msg.Data() }

func (r jsRecord) Header(key string) string {
	return r.msg.Headers().Get(key)
}

func (r jsRecord) Ack() error { return r.msg.Ack() }

func (r jsRecord) Nak(delay time.Duration) error {
	if delay > 0 {
		return r.msg.NakWithDelay(delay)
	}
	return r.msg.Nak()
}
