// Package chat contains core concepts of the relay.
// This file defines Message records and related rules.
// Messages are immutable once persisted.
package chat

import (
	"time"
)

// Message represents an immutable chat record.
// ID and CreatedAt are assigned by the storage layer on append.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"from"`
	Text      string    `json:"text,omitempty"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasImage reports whether the message references an uploaded image.
func (m Message) HasImage() bool {
	return m.Image != ""
}

// IsEmpty reports whether the message carries neither text nor image.
func (m Message) IsEmpty() bool {
	return m.Text == "" && m.Image == ""
}
