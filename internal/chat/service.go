package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"campus-chat/internal/cache"
	"campus-chat/internal/invalidation"
	"campus-chat/internal/logging"
	"campus-chat/internal/models"
	"campus-chat/internal/repositories"
	"campus-chat/internal/telemetry"
)

var (
	ErrValidation      = errors.New("message body is required")
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrForbidden       = errors.New("not the message owner")
	ErrPersistence     = errors.New("message store unavailable")
)

// Broadcaster fans an event out to every session of a room.
type Broadcaster interface {
	Broadcast(roomID int, event any)
}

// Notifier receives model changes for cache invalidation.
type Notifier interface {
	Changed(ctx context.Context, change invalidation.Change)
}

// Auditor records user actions.
type Auditor interface {
	Emit(ctx context.Context, eventType string, userID *int, payload telemetry.AuditPayload)
}

// Service runs message mutations: persist, invalidate the affected views, then broadcast.
type Service struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	store    cache.Store
	notifier Notifier
	hub      Broadcaster
	audit    Auditor
	sanitize func(string) string
	logger   *zap.Logger
}

type Option func(*Service)

// WithSanitizer filters message bodies before they are stored.
func WithSanitizer(fn func(string) string) Option {
	return func(s *Service) { s.sanitize = fn }
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.audit = a }
}

func NewService(rooms repositories.RoomRepository, messages repositories.MessageRepository, store cache.Store, notifier Notifier, hub Broadcaster, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		rooms:    rooms,
		messages: messages,
		store:    store,
		notifier: notifier,
		hub:      hub,
		sanitize: func(body string) string { return body },
		logger:   logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessage stores body in roomID on behalf of userID and broadcasts it to the room.
// Nothing is invalidated or broadcast unless the write succeeded.
func (s *Service) SendMessage(ctx context.Context, userID, roomID int, body string) (models.MessageMinimal, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.MessageMinimal{}, ErrValidation
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			return models.MessageMinimal{}, ErrRoomNotFound
		}
		return models.MessageMinimal{}, fmt.Errorf("%w: load room: %v", ErrPersistence, err)
	}

	msg, err := s.messages.CreateMessage(ctx, userID, roomID, s.sanitize(body))
	if err != nil {
		s.logger.Error("create message failed", zap.Int("room_id", roomID), zap.Int("user_id", userID), zap.Error(err))
		return models.MessageMinimal{}, fmt.Errorf("%w: create message: %v", ErrPersistence, err)
	}

	s.invalidate(ctx, roomID, userID)
	s.notifier.Changed(ctx, invalidation.Change{Model: invalidation.ModelMessage, ID: msg.ID, Op: invalidation.OpCreated})

	view, err := s.messages.GetMessageMinimal(ctx, msg.ID)
	if err != nil {
		s.logger.Warn("load message view failed, broadcasting bare message", zap.Int("message_id", msg.ID), zap.Error(err))
		view = models.MessageMinimal{
			ID:        msg.ID,
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
			Owner:     &models.UserMinimal{ID: userID},
			Room:      &models.RoomRef{ID: room.ID, RoomName: room.RoomName},
		}
	}
	s.hub.Broadcast(roomID, models.ChatMessageEvent(view))

	s.emit(ctx, telemetry.EventMessageSent, userID, telemetry.AuditPayload{Text: "message sent", RoomID: roomID, MessageID: msg.ID})
	return view, nil
}

// DeleteMessage removes messageID if userID owns it and announces the deletion in the
// message's own room.
func (s *Service) DeleteMessage(ctx context.Context, userID, messageID int) (models.Message, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, fmt.Errorf("%w: load message: %v", ErrPersistence, err)
	}
	if msg.OwnerID != userID {
		return models.Message{}, ErrForbidden
	}

	if err := s.messages.DeleteMessage(ctx, messageID); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return models.Message{}, ErrMessageNotFound
		}
		s.logger.Error("delete message failed", zap.Int("message_id", messageID), zap.Error(err))
		return models.Message{}, fmt.Errorf("%w: delete message: %v", ErrPersistence, err)
	}

	s.invalidate(ctx, msg.RoomID, userID)
	s.notifier.Changed(ctx, invalidation.Change{Model: invalidation.ModelMessage, ID: msg.ID, Op: invalidation.OpDeleted})
	s.hub.Broadcast(msg.RoomID, models.ChatMessageDeleteEvent(msg.ID))

	s.emit(ctx, telemetry.EventMessageDeleted, userID, telemetry.AuditPayload{Text: "message deleted", RoomID: msg.RoomID, MessageID: msg.ID})
	return msg, nil
}

// invalidate drops the three views a message mutation always touches.
func (s *Service) invalidate(ctx context.Context, roomID, userID int) {
	keys := []string{cache.RoomDetailKey(roomID), cache.HomepageKey(""), cache.UserProfileKey(userID)}
	if err := s.store.Delete(ctx, keys...); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *Service) emit(ctx context.Context, eventType string, userID int, payload telemetry.AuditPayload) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, eventType, &userID, payload)
}
