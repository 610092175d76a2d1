package entity

import "time"

// User is a Telegram user known to the bot. It is upserted into the
// relational store on every observed interaction, keyed by ID.
type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	Username  string    `json:"username,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	JoinedUs  time.Time `json:"joined_us"`
}

// Name returns the display name: a non-empty username wins, then
// "first last" when a last name is present, then the first name.
func (u User) Name() string {
	if u.Username != "" {
		return u.Username
	}
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}
