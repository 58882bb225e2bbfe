package models

// Inbound socket actions.
const (
	ActionAuthCheck     = "Auth_Check"
	ActionSendMessage   = "send_message"
	ActionDeleteMessage = "delete_message"
)

// Outbound socket event types.
const (
	EventConnectionEstablished = "connection_established"
	EventAuthSuccess           = "auth_success"
	EventChatMessage           = "chat_message"
	EventChatMessageDelete     = "chat_message_delete"
	EventError                 = "error"
)

// ClientAction is a decoded client frame.
type ClientAction struct {
	Action    string `json:"action"`
	Token     string `json:"token,omitempty"`
	Body      string `json:"body,omitempty"`
	MessageID int    `json:"message_id,omitempty"`
}

// RoomEvent is written to websocket clients, either broadcast to a room or sent to one session.
type RoomEvent struct {
	Type      string `json:"type"`
	Message   any    `json:"message,omitempty"`
	MessageID int    `json:"message_id,omitempty"`
}

// ChatMessageEvent wraps a serialized message for broadcast.
func ChatMessageEvent(msg MessageMinimal) RoomEvent {
	return RoomEvent{Type: EventChatMessage, Message: msg}
}

// ChatMessageDeleteEvent announces a deleted message id.
func ChatMessageDeleteEvent(messageID int) RoomEvent {
	return RoomEvent{Type: EventChatMessageDelete, MessageID: messageID}
}

// TextEvent builds connection_established, auth_success and error events.
func TextEvent(eventType, text string) RoomEvent {
	return RoomEvent{Type: eventType, Message: text}
}
