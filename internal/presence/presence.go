// Package presence records which usernames are currently in the chat.
package presence

import (
	"context"
	"time"
)

const (
	BackendDatabase = "database"
	BackendRedis    = "redis"
)

// Entry is one present user. Since is the time of the first registration
// that is still in effect.
type Entry struct {
	Username string    `json:"username"`
	Since    time.Time `json:"since"`
}

// Store is the set of present usernames. Register and Deregister are
// idempotent: registering twice keeps one entry, deregistering an absent
// user is not an error.
type Store interface {
	Register(ctx context.Context, username string) error
	Deregister(ctx context.Context, username string) error
	List(ctx context.Context) ([]Entry, error)
}
