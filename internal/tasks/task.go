package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task names understood by the dispatcher.
const (
	WarmRoomDetail  = "warm_room_detail"
	WarmUserProfile = "warm_user_profile"
	WarmDashboard   = "warm_dashboard"
	ModelChanged    = "model_changed"
)

var (
	ErrQueueFull     = errors.New("task queue full")
	ErrQueueClosed   = errors.New("task queue closed")
	ErrQueueDisabled = errors.New("task queue disabled")
	ErrUnknownTask   = errors.New("unknown task")
)

// Task is one unit of background work. Args is the JSON object of its parameters.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

type RoomArgs struct {
	RoomID int `json:"room_id"`
}

type UserArgs struct {
	UserID int `json:"user_id"`
}

type DashboardArgs struct {
	Q string `json:"q"`
}

// New builds a task with a fresh id.
func New(name string, args any) (Task, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Task{}, err
	}
	return Task{ID: uuid.NewString(), Name: name, Args: raw, EnqueuedAt: time.Now().UTC()}, nil
}

// Decode unmarshals the task arguments into v.
func (t Task) Decode(v any) error {
	return json.Unmarshal(t.Args, v)
}

// Queue accepts tasks for asynchronous, at-least-once execution.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Close() error
}
