package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"campus-chat/internal/auth"
	"campus-chat/internal/cache"
	"campus-chat/internal/chat"
	"campus-chat/internal/mocks"
	"campus-chat/internal/models"
	"campus-chat/internal/repositories"
)

type roomFixture struct {
	hub       *Hub
	validator *mocks.ValidatorMock
	rooms     *mocks.RoomRepositoryMock
	messages  *mocks.MessageRepositoryMock
	store     *cache.MemoryStore
	url       string
}

func newRoomFixture(t *testing.T) *roomFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &roomFixture{
		hub:       NewHub(nil),
		validator: new(mocks.ValidatorMock),
		rooms:     new(mocks.RoomRepositoryMock),
		messages:  new(mocks.MessageRepositoryMock),
		store:     cache.NewMemoryStore(),
	}
	notifier := new(mocks.NotifierMock)
	notifier.On("Changed", mock.Anything, mock.Anything).Return()

	f.validator.On("Validate", mock.Anything, "token-alice").Return(auth.Identity{UserID: 3}, nil)
	f.validator.On("Validate", mock.Anything, "token-bob").Return(auth.Identity{UserID: 4}, nil)
	f.validator.On("Validate", mock.Anything, mock.Anything).Return(nil, &auth.Error{Reason: auth.ErrMalformedToken})

	svc := chat.NewService(f.rooms, f.messages, f.store, notifier, f.hub, nil)
	handler := NewRoomWebSocketHandler(f.hub, svc, f.validator, SessionConfig{
		SendBuffer:      16,
		WriteWait:       time.Second,
		PongWait:        10 * time.Second,
		PingPeriod:      9 * time.Second,
		MaxMessageBytes: 4096,
	}, nil)

	router := gin.New()
	router.GET("/ws/rooms/:room_id", handler.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	f.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/"
	return f
}

func (f *roomFixture) dial(t *testing.T, roomID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url+roomID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	event := readEvent(t, conn)
	require.Equal(t, models.EventConnectionEstablished, event.Type)
	require.Equal(t, "You are now connected!", event.Message)
	return conn
}

func (f *roomFixture) authenticate(t *testing.T, conn *websocket.Conn, token string) {
	t.Helper()
	send(t, conn, models.ClientAction{Action: models.ActionAuthCheck, Token: token})
	event := readEvent(t, conn)
	require.Equal(t, models.EventAuthSuccess, event.Type)
	require.Equal(t, "Authentication successful", event.Message)
}

func (f *roomFixture) waitMembers(t *testing.T, roomID, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.hub.Members(roomID) == n }, 2*time.Second, 10*time.Millisecond)
}

type wireEvent struct {
	Type      string          `json:"type"`
	Message   any             `json:"message"`
	MessageID int             `json:"message_id"`
	Raw       json.RawMessage `json:"-"`
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var event wireEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	event.Raw = raw
	return event
}

func send(t *testing.T, conn *websocket.Conn, action models.ClientAction) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(action))
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, raw, err := conn.ReadMessage()
	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected no event, got %s (%v)", raw, err)
}

func TestRoomSocketRejectsInvalidRoomID(t *testing.T) {
	f := newRoomFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.url+"abc", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestRoomSocketConnectJoinsRoom(t *testing.T) {
	f := newRoomFixture(t)

	f.dial(t, "7")
	f.waitMembers(t, 7, 1)
}

func TestRoomSocketInvalidTokenCloses(t *testing.T) {
	f := newRoomFixture(t)
	conn := f.dial(t, "7")

	send(t, conn, models.ClientAction{Action: models.ActionAuthCheck, Token: "forged"})

	expectClosed(t, conn)
	f.waitMembers(t, 7, 0)
	assert.Equal(t, 0, f.hub.Rooms())
}

func TestRoomSocketActionBeforeAuthCloses(t *testing.T) {
	f := newRoomFixture(t)
	conn := f.dial(t, "7")

	send(t, conn, models.ClientAction{Action: models.ActionSendMessage, Body: "hi"})

	expectClosed(t, conn)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRoomSocketMalformedPayloadCloses(t *testing.T) {
	f := newRoomFixture(t)
	conn := f.dial(t, "7")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	expectClosed(t, conn)
}

func TestRoomSocketUnknownActionCloses(t *testing.T) {
	f := newRoomFixture(t)
	conn := f.dial(t, "7")

	send(t, conn, models.ClientAction{Action: "shout"})

	expectClosed(t, conn)
}

func TestRoomSocketSendBroadcastsToEveryMember(t *testing.T) {
	f := newRoomFixture(t)
	now := time.Now().UTC()
	name := "alice"

	f.rooms.On("GetRoom", mock.Anything, 7).Return(models.Room{ID: 7, RoomName: "Go Talk"}, nil)
	f.messages.On("CreateMessage", mock.Anything, 3, 7, "hello").Return(models.Message{ID: 11, OwnerID: 3, RoomID: 7, Body: "hello", CreatedAt: now}, nil)
	f.messages.On("GetMessageMinimal", mock.Anything, 11).Return(models.MessageMinimal{
		ID: 11, Body: "hello", CreatedAt: now,
		Owner: &models.UserMinimal{ID: 3, FirstName: &name},
		Room:  &models.RoomRef{ID: 7, RoomName: "Go Talk"},
	}, nil)
	require.NoError(t, f.store.Set(context.Background(), cache.RoomDetailKey(7), []byte(`{}`), time.Minute))

	alice := f.dial(t, "7")
	bob := f.dial(t, "7")
	other := f.dial(t, "8")
	f.authenticate(t, alice, "token-alice")
	f.authenticate(t, bob, "token-bob")

	send(t, alice, models.ClientAction{Action: models.ActionSendMessage, Body: "  hello  "})

	for _, conn := range []*websocket.Conn{alice, bob} {
		event := readEvent(t, conn)
		require.Equal(t, models.EventChatMessage, event.Type)
		var payload struct {
			Message models.MessageMinimal `json:"message"`
		}
		require.NoError(t, json.Unmarshal(event.Raw, &payload))
		assert.Equal(t, 11, payload.Message.ID)
		assert.Equal(t, "hello", payload.Message.Body)
		require.NotNil(t, payload.Message.Owner)
		assert.Equal(t, 3, payload.Message.Owner.ID)
		require.NotNil(t, payload.Message.Room)
		assert.Equal(t, "Go Talk", payload.Message.Room.RoomName)
	}
	for _, conn := range []*websocket.Conn{alice, bob, other} {
		expectSilence(t, conn)
	}

	_, err := f.store.Get(context.Background(), cache.RoomDetailKey(7))
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestRoomSocketSendErrorsStayOpen(t *testing.T) {
	f := newRoomFixture(t)
	f.rooms.On("GetRoom", mock.Anything, 9).Return(nil, repositories.ErrRoomNotFound)

	conn := f.dial(t, "9")
	f.authenticate(t, conn, "token-alice")

	send(t, conn, models.ClientAction{Action: models.ActionSendMessage, Body: "   "})
	event := readEvent(t, conn)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "Message body is required", event.Message)

	send(t, conn, models.ClientAction{Action: models.ActionSendMessage, Body: "hello"})
	event = readEvent(t, conn)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "Room not found", event.Message)

	f.waitMembers(t, 9, 1)
}

func TestRoomSocketDeleteChecksOwnership(t *testing.T) {
	f := newRoomFixture(t)
	f.messages.On("GetMessage", mock.Anything, 11).Return(models.Message{ID: 11, OwnerID: 3, RoomID: 7, Body: "hello"}, nil)
	f.messages.On("GetMessage", mock.Anything, 12).Return(nil, repositories.ErrMessageNotFound)
	f.messages.On("DeleteMessage", mock.Anything, 11).Return(nil).Once()

	alice := f.dial(t, "7")
	bob := f.dial(t, "7")
	f.authenticate(t, alice, "token-alice")
	f.authenticate(t, bob, "token-bob")

	send(t, bob, models.ClientAction{Action: models.ActionDeleteMessage, MessageID: 11})
	event := readEvent(t, bob)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "Unauthorized to delete this message.", event.Message)

	send(t, bob, models.ClientAction{Action: models.ActionDeleteMessage, MessageID: 12})
	event = readEvent(t, bob)
	assert.Equal(t, "Message not found", event.Message)

	// alice's next event must be the deletion, not bob's error.
	send(t, alice, models.ClientAction{Action: models.ActionDeleteMessage, MessageID: 11})
	for _, conn := range []*websocket.Conn{alice, bob} {
		event := readEvent(t, conn)
		assert.Equal(t, models.EventChatMessageDelete, event.Type)
		assert.Equal(t, 11, event.MessageID)
	}
	expectSilence(t, alice)
	expectSilence(t, bob)
	f.messages.AssertNumberOfCalls(t, "DeleteMessage", 1)
}

func TestRoomSocketDisconnectLeavesRoom(t *testing.T) {
	f := newRoomFixture(t)
	alice := f.dial(t, "7")
	f.dial(t, "7")
	f.waitMembers(t, 7, 2)

	require.NoError(t, alice.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	f.waitMembers(t, 7, 1)
}

type stubService struct{}

func (stubService) SendMessage(context.Context, int, int, string) (models.MessageMinimal, error) {
	return models.MessageMinimal{}, nil
}

func (stubService) DeleteMessage(context.Context, int, int) (models.Message, error) {
	return models.Message{}, nil
}

func TestSessionStateMachine(t *testing.T) {
	validator := new(mocks.ValidatorMock)
	validator.On("Validate", mock.Anything, "good").Return(auth.Identity{UserID: 5}, nil)
	validator.On("Validate", mock.Anything, "bad").Return(nil, &auth.Error{Reason: auth.ErrExpiredToken})

	newTestSession := func() *Session {
		return newSession(nil, ConnInfo{ConnID: "c1", RoomID: 7}, NewHub(nil), stubService{}, validator, SessionConfig{SendBuffer: 4}, zap.NewNop())
	}
	ctx := context.Background()

	s := newTestSession()
	assert.Equal(t, StateConnecting, s.State())
	reason, ok := s.handle(ctx, models.ClientAction{Action: models.ActionDeleteMessage, MessageID: 1})
	assert.False(t, ok)
	assert.Equal(t, "unauthenticated action", reason)

	s = newTestSession()
	_, ok = s.handle(ctx, models.ClientAction{Action: models.ActionAuthCheck, Token: "good"})
	require.True(t, ok)
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, 5, s.info.UserID)
	assert.Len(t, s.send, 1)

	_, ok = s.handle(ctx, models.ClientAction{Action: models.ActionSendMessage, Body: "hi"})
	assert.True(t, ok)

	s.Close("test")
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.Deliver([]byte("x")), ErrSessionClosed)
	s.Close("again")
	assert.Equal(t, "test", s.closeReason())

	s = newTestSession()
	reason, ok = s.handle(ctx, models.ClientAction{Action: models.ActionAuthCheck, Token: "bad"})
	assert.False(t, ok)
	assert.Equal(t, "authentication failed", reason)
	assert.Equal(t, StateConnecting, s.State())
}

func TestSessionClosedBeforeJoinNeverStaysInRoom(t *testing.T) {
	hub := NewHub(nil)
	s := newSession(nil, ConnInfo{ConnID: "c1", RoomID: 7}, hub, stubService{}, new(mocks.ValidatorMock), SessionConfig{}, zap.NewNop())

	s.Close("ping failed")

	assert.False(t, s.join())
	assert.Equal(t, 0, hub.Members(7))
	assert.Equal(t, 0, hub.Rooms())

	live := newSession(nil, ConnInfo{ConnID: "c2", RoomID: 7}, hub, stubService{}, new(mocks.ValidatorMock), SessionConfig{}, zap.NewNop())
	assert.True(t, live.join())
	assert.Equal(t, 1, hub.Members(7))
}

func TestSessionDeliverRejectsWhenBufferFull(t *testing.T) {
	s := newSession(nil, ConnInfo{ConnID: "c1", RoomID: 7}, NewHub(nil), stubService{}, new(mocks.ValidatorMock), SessionConfig{SendBuffer: 1}, zap.NewNop())

	require.NoError(t, s.Deliver([]byte("a")))
	assert.ErrorIs(t, s.Deliver([]byte("b")), ErrSendBufferFull)
}

func TestErrorTextMapsChatErrors(t *testing.T) {
	assert.Equal(t, "Room not found", errorText(chat.ErrRoomNotFound))
	assert.Equal(t, "Message not found", errorText(chat.ErrMessageNotFound))
	assert.Equal(t, "Unauthorized to delete this message.", errorText(chat.ErrForbidden))
	assert.Equal(t, "Message body is required", errorText(chat.ErrValidation))
	assert.Equal(t, "Something went wrong, please try again.", errorText(chat.ErrPersistence))
}
