package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"campus-chat/internal/logging"
	"campus-chat/internal/observability"
)

// AMQPQueue publishes tasks to a durable RabbitMQ queue and consumes them with manual acks.
type AMQPQueue struct {
	conn     *amqp.Connection
	pub      *amqp.Channel
	consumer *amqp.Channel
	exchange string
	queue    string
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// DialAMQPQueue connects and declares the task exchange, queue and binding. The queue name is
// also the routing key.
func DialAMQPQueue(url, exchange, queue string, timeout time.Duration, logger *zap.Logger) (*AMQPQueue, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &AMQPQueue{
		conn:     conn,
		pub:      ch,
		exchange: exchange,
		queue:    queue,
		timeout:  timeout,
		logger:   logging.OrNop(logger),
	}, nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}

	err = q.pub.PublishWithContext(ctx, q.exchange, q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    task.ID,
		Type:         task.Name,
		Timestamp:    task.EnqueuedAt,
		Body:         body,
	})
	if err != nil {
		observability.IncAMQPPublishError()
		q.logger.Warn("task publish failed", zap.String("task", task.Name), zap.Error(err))
	}
	return err
}

// Consume starts workers that feed deliveries to d until ctx ends or the queue is closed.
// Every delivery is acked after its handler returns, failed or not; rebuilds are not retried.
func (q *AMQPQueue) Consume(ctx context.Context, d *Dispatcher, workers int) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.Qos(workers, 0, false); err != nil {
		_ = ch.Close()
		return err
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return err
	}
	q.consumer = ch

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case del, ok := <-deliveries:
					if !ok {
						return
					}
					handleDelivery(ctx, d, del, q.timeout, q.logger)
				}
			}
		}()
	}
	q.logger.Info("task consumers started", zap.String("queue", q.queue), zap.Int("workers", workers))
	return nil
}

func handleDelivery(ctx context.Context, d *Dispatcher, del amqp.Delivery, timeout time.Duration, logger *zap.Logger) {
	var task Task
	if err := json.Unmarshal(del.Body, &task); err != nil || task.Name == "" {
		logger.Warn("dropping undecodable task", zap.String("message_id", del.MessageId), zap.Error(err))
		_ = del.Nack(false, false)
		return
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	_ = d.Dispatch(ctx, task)
	if err := del.Ack(false); err != nil {
		logger.Warn("task ack failed", zap.String("task", task.Name), zap.Error(err))
	}
}

func (q *AMQPQueue) Close() error {
	if q.consumer != nil {
		_ = q.consumer.Close()
	}
	q.wg.Wait()
	if q.pub != nil {
		_ = q.pub.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
