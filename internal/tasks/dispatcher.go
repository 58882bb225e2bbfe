package tasks

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"campus-chat/internal/logging"
	"campus-chat/internal/observability"
)

// Handler executes one task.
type Handler func(ctx context.Context, task Task) error

// Dispatcher routes tasks to their handlers by name. Every queue backend consumes through it.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler), logger: logging.OrNop(logger)}
}

// Register binds name to h, replacing any previous handler.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	d.handlers[name] = h
	d.mu.Unlock()
}

// Dispatch runs the handler of task. Panics are recovered and reported as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task) (err error) {
	d.mu.RLock()
	h, ok := d.handlers[task.Name]
	d.mu.RUnlock()
	if !ok {
		observability.IncTask(task.Name, "handle", "unknown")
		return fmt.Errorf("%w: %s", ErrUnknownTask, task.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
		if err != nil {
			observability.IncTask(task.Name, "handle", "error")
			d.logger.Warn("task failed", zap.String("task", task.Name), zap.String("task_id", task.ID), zap.Error(err))
			return
		}
		observability.IncTask(task.Name, "handle", "ok")
	}()
	return h(ctx, task)
}
