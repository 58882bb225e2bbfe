package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"campus-chat/internal/auth"
	"campus-chat/internal/models"
	"campus-chat/internal/observability"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// MessageService performs the message mutations a session may request.
type MessageService interface {
	SendMessage(ctx context.Context, userID, roomID int, body string) (models.MessageMinimal, error)
	DeleteMessage(ctx context.Context, userID, messageID int) (models.Message, error)
}

type SessionConfig struct {
	SendBuffer      int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxMessageBytes int64
}

// Session is one client connection bound to a room channel. A reader goroutine handles
// inbound actions in order; a writer goroutine owns every write to the socket.
type Session struct {
	conn      *websocket.Conn
	info      ConnInfo
	hub       *Hub
	chat      MessageService
	validator auth.Validator
	cfg       SessionConfig
	logger    *zap.Logger

	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	cancel     context.CancelFunc

	mu       sync.Mutex
	state    State
	identity *auth.Identity
	reason   string
	once     sync.Once
}

func newSession(conn *websocket.Conn, info ConnInfo, hub *Hub, chat MessageService, validator auth.Validator, cfg SessionConfig, logger *zap.Logger) *Session {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return &Session{
		conn:       conn,
		info:       info,
		hub:        hub,
		chat:       chat,
		validator:  validator,
		cfg:        cfg,
		logger:     logger.With(zap.String("conn_id", info.ConnID), zap.Int("room_id", info.RoomID)),
		send:       make(chan []byte, cfg.SendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.info.ConnID }

// Deliver queues payload for the writer without blocking.
func (s *Session) Deliver(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run serves the connection until it closes and returns the close reason.
func (s *Session) Run(ctx context.Context) string {
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	if !s.join() {
		_ = s.conn.Close()
		return s.closeReason()
	}
	s.reply(models.TextEvent(models.EventConnectionEstablished, "You are now connected!"))
	go s.writeLoop()

	reason := s.readLoop(ctx)
	s.Close(reason)
	<-s.writerDone
	return s.closeReason()
}

// join adds the session to its room channel. A session closed meanwhile is taken out again so
// the room never keeps a dead subscriber.
func (s *Session) join() bool {
	s.hub.Join(s.info.RoomID, s)
	if s.State() == StateClosed {
		s.hub.Leave(s.info.RoomID, s)
		return false
	}
	return true
}

// Close leaves the room channel, then marks the session closed and stops the writer.
// It is safe to call more than once.
func (s *Session) Close(reason string) {
	s.once.Do(func() {
		s.hub.Leave(s.info.RoomID, s)
		s.mu.Lock()
		s.state = StateClosed
		s.reason = reason
		s.mu.Unlock()
		if s.cancel != nil {
			s.cancel()
		}
		close(s.done)
	})
}

func (s *Session) closeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) readLoop(ctx context.Context) string {
	if s.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	if s.cfg.PongWait > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		})
	}

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("room", "ws_error")
				_ = observability.PublishEvent(ctx, observability.RoutingWSError, observability.NewWSEvent("ws_error", s.eventPayload(err.Error())),
					observability.BuildHeaders(s.info.RequestID, s.info.TraceID))
			}
			return err.Error()
		}

		var action models.ClientAction
		if err := json.Unmarshal(raw, &action); err != nil {
			observability.IncWSEvent("room", "malformed")
			return "malformed payload"
		}
		if reason, ok := s.handle(ctx, action); !ok {
			return reason
		}
	}
}

// handle runs one client action. It returns false with a reason when the session must close.
func (s *Session) handle(ctx context.Context, action models.ClientAction) (string, bool) {
	switch action.Action {
	case models.ActionAuthCheck:
		identity, err := s.validator.Validate(ctx, action.Token)
		if err != nil {
			observability.IncWSEvent("room", "auth_failed")
			if auth.IsAuthError(err) {
				s.logger.Info("authentication failed", zap.Error(err))
			} else {
				s.logger.Warn("token validation error", zap.Error(err))
			}
			return "authentication failed", false
		}
		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			return "closed", false
		}
		s.state = StateAuthenticated
		s.identity = &identity
		s.info.UserID = identity.UserID
		s.mu.Unlock()

		observability.IncWSEvent("room", "auth_success")
		_ = observability.PublishEvent(ctx, observability.RoutingWSAuthorized, observability.NewWSEvent("ws_authorized", s.eventPayload("")),
			observability.BuildHeaders(s.info.RequestID, s.info.TraceID))
		s.reply(models.TextEvent(models.EventAuthSuccess, "Authentication successful"))
		return "", true

	case models.ActionSendMessage, models.ActionDeleteMessage:
		identity, ok := s.authenticated()
		if !ok {
			return "unauthenticated action", false
		}
		if action.Action == models.ActionSendMessage {
			if _, err := s.chat.SendMessage(ctx, identity.UserID, s.info.RoomID, action.Body); err != nil {
				s.fail(action.Action, err)
			}
		} else {
			if _, err := s.chat.DeleteMessage(ctx, identity.UserID, action.MessageID); err != nil {
				s.fail(action.Action, err)
			}
		}
		observability.IncWSEvent("room", action.Action)
		return "", true

	default:
		return "unknown action", false
	}
}

func (s *Session) authenticated() (auth.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || s.identity == nil {
		return auth.Identity{}, false
	}
	return *s.identity, true
}

// fail reports a business error to this session only; the connection stays open.
func (s *Session) fail(action string, err error) {
	s.logger.Debug("action failed", zap.String("action", action), zap.Error(err))
	s.reply(models.TextEvent(models.EventError, errorText(err)))
}

func (s *Session) reply(event models.RoomEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal reply failed", zap.Error(err))
		return
	}
	if err := s.Deliver(payload); err != nil {
		s.logger.Warn("reply dropped", zap.String("type", event.Type), zap.Error(err))
	}
}

func (s *Session) writeLoop() {
	var ticker *time.Ticker
	var ping <-chan time.Time
	if s.cfg.PingPeriod > 0 {
		ticker = time.NewTicker(s.cfg.PingPeriod)
		ping = ticker.C
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		_ = s.conn.Close()
		close(s.writerDone)
	}()

	for {
		select {
		case payload := <-s.send:
			s.setWriteDeadline()
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.Close("write failed: " + err.Error())
				return
			}
		case <-ping:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, s.writeDeadline()); err != nil {
				s.Close("ping failed: " + err.Error())
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), s.writeDeadline())
			return
		}
	}
}

func (s *Session) writeDeadline() time.Time {
	if s.cfg.WriteWait <= 0 {
		return time.Now().Add(10 * time.Second)
	}
	return time.Now().Add(s.cfg.WriteWait)
}

func (s *Session) setWriteDeadline() {
	_ = s.conn.SetWriteDeadline(s.writeDeadline())
}

func (s *Session) eventPayload(reason string) observability.WSEventPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return observability.WSEventPayload{
		ConnID:     s.info.ConnID,
		RoomID:     s.info.RoomID,
		UserID:     s.info.UserID,
		IP:         s.info.IP,
		DurationMs: time.Since(s.info.ConnectedAt).Milliseconds(),
		Reason:     reason,
	}
}
