package models

import "time"

// Alert is an accepted post reduced to its core message. Alerts are appended
// to the alert log and never modified afterwards.
type Alert struct {
	ID          PostID    `json:"id"`
	Date        time.Time `json:"date"`
	CoreMessage string    `json:"core_message"`
	Source      string    `json:"source,omitempty"`
}

// NewAlert builds an alert from a post and its extracted core message.
// The date is always stored in UTC.
func NewAlert(post RawPost, coreMessage, source string) Alert {
	return Alert{
		ID:          post.ID,
		Date:        post.Timestamp.UTC(),
		CoreMessage: coreMessage,
		Source:      source,
	}
}
