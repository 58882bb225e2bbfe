package models

import "time"

// Room is the persisted chat room row.
type Room struct {
	ID              int       `db:"id" json:"id"`
	RoomName        string    `db:"room_name" json:"room_name"`
	RoomDescription string    `db:"room_description" json:"room_description"`
	OwnerID         *int      `db:"owner_id" json:"owner_id"`
	TopicID         *int      `db:"topic_id" json:"topic_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// RoomRef identifies a room inside another payload.
type RoomRef struct {
	ID       int    `db:"id" json:"id"`
	RoomName string `db:"room_name" json:"room_name"`
}

// TopicName is the nested topic shape of room payloads.
type TopicName struct {
	TopicName string `db:"topic_name" json:"topic_name"`
}

// RoomProfile is the room header of a room detail view.
type RoomProfile struct {
	ID              int          `db:"id" json:"id"`
	RoomName        string       `db:"room_name" json:"room_name"`
	RoomDescription string       `db:"room_description" json:"room_description"`
	Owner           *UserMinimal `json:"owner"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	TopicDetails    *TopicName   `json:"topic_details"`
}

// RoomMinimal is the room list entry of the homepage and user profiles.
type RoomMinimal struct {
	ID                int          `db:"id" json:"id"`
	RoomName          string       `db:"room_name" json:"room_name"`
	Owner             *UserMinimal `json:"owner"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	ParticipantsCount int          `db:"participants_count" json:"participants_count"`
	TopicDetails      *TopicName   `json:"topic_details"`
}

// Topic is a topic with the number of rooms tagged with it.
type Topic struct {
	ID        int    `db:"id" json:"id"`
	TopicName string `db:"topic_name" json:"topic_name"`
	RoomCount int    `db:"room_count" json:"room_count"`
}
