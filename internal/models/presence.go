package models

import "time"

// Presence marks a username as currently active in the chat.
// Usernames are display names, so two clients may share one entry.
type Presence struct {
	Username  string `gorm:"primaryKey;size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
