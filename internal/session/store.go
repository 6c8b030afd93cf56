// Package session provides the durable session directory: every exchange
// belongs to a session, and its message sequence is append-only and
// strictly ordered.
package session

import (
	"errors"
	"time"
)

// ErrSessionNotFound indicates the requested session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session is the directory entry for one conversation.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}
