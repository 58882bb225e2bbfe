package observability

import "time"

// Routing keys of the websocket event stream.
const (
	RoutingWSConnected    = "ws.room.connected"
	RoutingWSAuthorized   = "ws.room.authorized"
	RoutingWSDisconnected = "ws.room.disconnected"
	RoutingWSError        = "ws.room.error"
)

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// WSEventPayload describes one connection of a room channel.
type WSEventPayload struct {
	ConnID     string `json:"conn_id"`
	RoomID     int    `json:"room_id"`
	UserID     int    `json:"user_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

func NewWSEvent(name string, payload WSEventPayload) EventEnvelope {
	return EventEnvelope{
		EventType:  "ws_event",
		EventName:  name,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
