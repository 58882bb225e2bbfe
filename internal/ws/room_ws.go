package ws

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"campus-chat/internal/auth"
	"campus-chat/internal/logging"
	"campus-chat/internal/observability"
)

// RoomWebSocketHandler upgrades room connections and runs their sessions.
type RoomWebSocketHandler struct {
	hub       *Hub
	chat      MessageService
	validator auth.Validator
	cfg       SessionConfig
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, chat MessageService, validator auth.Validator, cfg SessionConfig, logger *zap.Logger) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{
		hub:       hub,
		chat:      chat,
		validator: validator,
		cfg:       cfg,
		logger:    logging.OrNop(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the connection and serves it until it closes. Authentication happens
// in-band with an Auth_Check action.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	ctx, span := otel.Tracer("campus-chat/ws").Start(c.Request.Context(), "ws.handshake")
	span.SetAttributes(attribute.Int("room_id", roomID))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.End()
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		RoomID:      roomID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.SetAttributes(attribute.String("conn_id", info.ConnID))
	span.End()

	session := newSession(conn, info, h.hub, h.chat, h.validator, h.cfg, h.logger)
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)

	observability.IncWSActive("room")
	observability.IncWSEvent("room", "ws_connect")
	_ = observability.PublishEvent(ctx, observability.RoutingWSConnected, observability.NewWSEvent("ws_connect", session.eventPayload("")), headers)
	h.logger.Debug("room connection opened", zap.String("conn_id", info.ConnID), zap.Int("room_id", roomID))

	reason := session.Run(ctx)

	observability.DecWSActive("room")
	observability.IncWSEvent("room", "ws_disconnect")
	_ = observability.PublishEvent(ctx, observability.RoutingWSDisconnected, observability.NewWSEvent("ws_disconnect", session.eventPayload(reason)), headers)
	h.logger.Debug("room connection closed", zap.String("conn_id", info.ConnID), zap.String("reason", reason))
}
