package tasks

import "context"

// NoopQueue rejects every task with ErrQueueDisabled so callers fall back to inline work.
type NoopQueue struct {
	Reason string
}

func (NoopQueue) Enqueue(context.Context, Task) error { return ErrQueueDisabled }

func (NoopQueue) Close() error { return nil }
