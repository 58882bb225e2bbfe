package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"campus-chat/internal/auth"
	"campus-chat/internal/invalidation"
	"campus-chat/internal/models"
	"campus-chat/internal/repositories"
	"campus-chat/internal/tasks"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, ownerID int, roomID int, body string) (models.Message, error) {
	args := m.Called(ctx, ownerID, roomID, body)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessageMinimal(ctx context.Context, messageID int) (models.MessageMinimal, error) {
	args := m.Called(ctx, messageID)
	var msg models.MessageMinimal
	if val := args.Get(0); val != nil {
		msg = val.(models.MessageMinimal)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type ValidatorMock struct {
	mock.Mock
}

func (m *ValidatorMock) Validate(ctx context.Context, token string) (auth.Identity, error) {
	args := m.Called(ctx, token)
	var identity auth.Identity
	if val := args.Get(0); val != nil {
		identity = val.(auth.Identity)
	}
	return identity, args.Error(1)
}

type QueueMock struct {
	mock.Mock
}

func (m *QueueMock) Enqueue(ctx context.Context, task tasks.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *QueueMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Changed(ctx context.Context, change invalidation.Change) {
	m.Called(ctx, change)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Broadcast(roomID int, event any) {
	m.Called(roomID, event)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) SendMessage(ctx context.Context, userID, roomID int, body string) (models.MessageMinimal, error) {
	args := m.Called(ctx, userID, roomID, body)
	var msg models.MessageMinimal
	if val := args.Get(0); val != nil {
		msg = val.(models.MessageMinimal)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) DeleteMessage(ctx context.Context, userID, messageID int) (models.Message, error) {
	args := m.Called(ctx, userID, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.RoomRepository = (*RoomRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ auth.Validator = (*ValidatorMock)(nil)
var _ tasks.Queue = (*QueueMock)(nil)
var _ interface {
	Changed(context.Context, invalidation.Change)
} = (*NotifierMock)(nil)
var _ interface {
	Broadcast(int, any)
} = (*BroadcasterMock)(nil)
