package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Options struct {
	Backend   string
	URL       string
	Exchange  string
	Queue     string
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// NewQueue builds the configured backend. An unreachable broker degrades to the local pool so
// warm-ups keep running in-process.
func NewQueue(ctx context.Context, opt Options, d *Dispatcher, logger *zap.Logger) Queue {
	local := func() Queue {
		return NewLocalQueue(d, LocalQueueOptions{QueueSize: opt.QueueSize, Workers: opt.Workers, Timeout: opt.Timeout}, logger)
	}

	switch opt.Backend {
	case "noop":
		logger.Info("task queue disabled, using noop")
		return NoopQueue{Reason: "configured"}
	case "amqp":
		q, err := DialAMQPQueue(opt.URL, opt.Exchange, opt.Queue, opt.Timeout, logger)
		if err != nil {
			logger.Warn("amqp task queue unavailable, using local", zap.Error(err))
			return local()
		}
		if err := q.Consume(ctx, d, opt.Workers); err != nil {
			logger.Warn("amqp task consumer failed, using local", zap.Error(err))
			_ = q.Close()
			return local()
		}
		logger.Info("amqp task queue connected", zap.String("exchange", opt.Exchange), zap.String("queue", opt.Queue))
		return q
	default:
		logger.Info("local task queue", zap.Int("workers", opt.Workers), zap.Int("queue_size", opt.QueueSize))
		return local()
	}
}

// Mode reports the backend of q for logging.
func Mode(q Queue) string {
	switch q.(type) {
	case *AMQPQueue:
		return "amqp"
	case *LocalQueue:
		return "local"
	case NoopQueue:
		return "noop"
	default:
		return "unknown"
	}
}
