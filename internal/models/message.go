package models

import "time"

// Message is a persisted chat message. It is immutable once created; only deletion is allowed.
type Message struct {
	ID        int       `db:"id" json:"id"`
	OwnerID   int       `db:"owner_id" json:"owner_id"`
	RoomID    int       `db:"room_id" json:"room_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessageProfile is the message shape embedded in a room detail view.
type MessageProfile struct {
	ID        int          `db:"id" json:"id"`
	Body      string       `db:"body" json:"body"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	Owner     *UserMinimal `json:"owner"`
}

// MessageMinimal is the message shape used by broadcasts, the homepage and user profiles.
type MessageMinimal struct {
	ID        int          `db:"id" json:"id"`
	Body      string       `db:"body" json:"body"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	Owner     *UserMinimal `json:"owner"`
	Room      *RoomRef     `json:"room"`
}
