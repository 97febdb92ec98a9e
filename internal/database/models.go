package database

import (
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks text written (or sent) by the user.
	RoleUser Role = "user"
	// RoleModel marks replies produced by the bot.
	RoleModel Role = "model"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Profile is the per-user preference record. It is created lazily on first
// contact and never deleted.
type Profile struct {
	UserID       int64     `db:"user_id"`
	Mood         string    `db:"mood"`
	SpeakEnabled bool      `db:"speak_enabled"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Turn is one stored message of a user's conversation history. Attachments
// are stored as textual summaries, never as binary content.
type Turn struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Role      Role      `db:"role"`
	Content   string    `db:"content"`
	Timestamp time.Time `db:"timestamp"`
}

// Stats summarizes table sizes for the admin status report.
type Stats struct {
	Users int `db:"users"`
	Turns int `db:"turns"`
}
