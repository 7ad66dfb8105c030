package chatclient

import (
	"math/rand/v2"
	"strings"
	"time"
)

const (
	// DefaultChannel is the broadcast channel every session joins unless told otherwise.
	DefaultChannel = "chat"
	// MessageEvent is the event name the relay publishes accepted messages under.
	MessageEvent = "message"

	maxMessageID = 100000
)

// Message is the only entity exchanged between clients.
// ID is a rendering key chosen by the sender; it is neither unique nor ordered.
type Message struct {
	Text      string    `json:"text"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	ID        int       `json:"id"`
}

// NewMessage stamps text with the sender's clock and a random id.
func NewMessage(text, username string, now time.Time, id int) Message {
	return Message{
		Text:      text,
		Username:  username,
		CreatedAt: now,
		ID:        id,
	}
}

// RandomID returns an id in [0, 100000).
func RandomID() int {
	return rand.IntN(maxMessageID)
}

// Enter validates a display name typed on the home screen and returns it trimmed.
func Enter(username string) (string, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return "", &ValidationError{Err: ErrEmptyUsername}
	}
	return trimmed, nil
}
