package entity

// MessageSendScheduled is a single message to be delivered to a user at a
// future point in time.
type MessageSendScheduled struct {
	Scheduled
	ID           string `json:"id"`
	User         User   `json:"user"`
	Text         string `json:"text"`
	MediaAddress string `json:"media_address,omitempty"`
}

// MessageDeletionScheduled is an existing message to be removed from a
// user's chat at a future point in time.
type MessageDeletionScheduled struct {
	Scheduled
	ID   int  `json:"id"`
	User User `json:"user"`
}
