package ws

import "time"

type ConnInfo struct {
	ConnID      string
	RoomID      int
	UserID      int
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
