package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"campus-chat/internal/logging"
)

// LocalQueue runs tasks in-process on a bounded queue drained by a fixed set of workers.
// Enqueue never blocks: a full queue rejects the task.
type LocalQueue struct {
	dispatcher *Dispatcher
	queue      chan Task
	timeout    time.Duration
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type LocalQueueOptions struct {
	QueueSize int
	Workers   int
	// Timeout bounds a single task run. Zero means no limit.
	Timeout time.Duration
}

func NewLocalQueue(dispatcher *Dispatcher, opt LocalQueueOptions, logger *zap.Logger) *LocalQueue {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 1
	}
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	q := &LocalQueue{
		dispatcher: dispatcher,
		queue:      make(chan Task, opt.QueueSize),
		timeout:    opt.Timeout,
		logger:     logging.OrNop(logger),
	}
	for i := 0; i < opt.Workers; i++ {
		q.wg.Add(1)
		go q.workerLoop(i)
	}
	return q
}

func (q *LocalQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *LocalQueue) workerLoop(workerID int) {
	defer q.wg.Done()
	for task := range q.queue {
		q.run(workerID, task)
	}
}

func (q *LocalQueue) run(workerID int, task Task) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	if err := q.dispatcher.Dispatch(ctx, task); err != nil {
		q.logger.Debug("local task error", zap.Int("worker", workerID), zap.String("task", task.Name), zap.Error(err))
	}
}

// Close stops accepting tasks, drains what is queued and waits for the workers.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
