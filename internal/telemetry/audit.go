package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"campus-chat/internal/logging"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Audit event types.
const (
	EventMessageSent    = "message_sent"
	EventMessageDeleted = "message_deleted"
	EventAuditTest      = "audit_test"
)

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *zap.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *int         `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level     string `json:"level"`
	Text      string `json:"text"`
	RoomID    int    `json:"room_id,omitempty"`
	MessageID int    `json:"message_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logging.OrNop(logger),
	}
}

// Emit publishes one audit record. Publish failures are logged, never returned.
func (e *AuditEmitter) Emit(ctx context.Context, eventType string, userID *int, payload AuditPayload) {
	if e == nil || e.publisher == nil {
		return
	}

	requestID := RequestID(ctx)
	e.logger.Debug("audit emit", zap.String("event_type", eventType), zap.String("request_id", requestID), zap.String("text", payload.Text))
	if payload.Level == "" {
		payload.Level = "INFO"
	}
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.logger.Warn("audit publish failed", zap.String("event_type", eventType), zap.Error(err))
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request id that audit records pick up.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
