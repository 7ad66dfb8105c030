package models

import (
	"time"

	"gorm.io/gorm"
)

// Message is an accepted chat message as archived by the relay.
// ClientID and SentAt are the sender's id and clock, stored as received.
type Message struct {
	gorm.Model
	Channel  string    `gorm:"size:164;not null;index"`
	ClientID int       `gorm:"not null"`
	Username string    `gorm:"size:255;not null"`
	Text     string    `gorm:"not null"`
	SentAt   time.Time `gorm:"not null"`
}
