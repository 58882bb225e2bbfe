package models

// RoomDetail is the cached payload behind GET /rooms/:room_id.
type RoomDetail struct {
	Message      string           `json:"message"`
	Room         RoomProfile      `json:"room"`
	Messages     []MessageProfile `json:"messages"`
	Participants []UserMinimal    `json:"participants"`
}

// Dashboard is the cached homepage payload for one search query.
type Dashboard struct {
	Message      string           `json:"message"`
	Rooms        []RoomMinimal    `json:"rooms"`
	Topics       []Topic          `json:"topics"`
	TopicsCount  int              `json:"topics_count"`
	RoomMessages []MessageMinimal `json:"room_messages"`
}

// UserProfile is the cached payload behind GET /users/:user_id.
type UserProfile struct {
	Message      string           `json:"message"`
	User         UserMinimal      `json:"user"`
	Rooms        []RoomMinimal    `json:"rooms"`
	RoomMessages []MessageMinimal `json:"room_messages"`
	Topics       []Topic          `json:"topics"`
	TopicsCount  int              `json:"topics_count"`
}
