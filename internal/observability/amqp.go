package observability

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const eventPublishTimeout = 2 * time.Second

// Publisher streams websocket lifecycle events to the event exchange.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message any, headers map[string]string) error
}

// AMQPPublisher publishes transient JSON events on a topic exchange. Publishes are serialized
// over a single channel.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
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
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) PublishJSON(ctx context.Context, routingKey string, message any, headers map[string]string) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	table := make(amqp.Table, len(headers))
	for key, value := range headers {
		table[key] = value
	}

	ctx, cancel := context.WithTimeout(ctx, eventPublishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now().UTC(),
		Headers:      table,
	})
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var (
	publisherMu     sync.RWMutex
	eventPublisher  Publisher
	publisherLogger = zap.NewNop()
)

// SetPublisher installs the process-wide event publisher. Failed publishes are logged to logger.
func SetPublisher(publisher Publisher, logger *zap.Logger) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	eventPublisher = publisher
	if logger != nil {
		publisherLogger = logger
	}
}

// PublishEvent sends an envelope through the process-wide publisher. It is a no-op until
// SetPublisher is called.
func PublishEvent(ctx context.Context, routingKey string, message any, headers map[string]string) error {
	publisherMu.RLock()
	publisher, logger := eventPublisher, publisherLogger
	publisherMu.RUnlock()
	if publisher == nil {
		return nil
	}

	if err := publisher.PublishJSON(ctx, routingKey, message, headers); err != nil {
		IncAMQPPublishError()
		logger.Warn("ws event publish failed", zap.String("routing_key", routingKey), zap.Error(err))
		return err
	}
	return nil
}
