package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-chat/internal/chat"
	"campus-chat/internal/models"
)

// MessageService performs message mutations on behalf of a user.
type MessageService interface {
	SendMessage(ctx context.Context, userID, roomID int, body string) (models.MessageMinimal, error)
	DeleteMessage(ctx context.Context, userID, messageID int) (models.Message, error)
}

// MessageHandler exposes the socket message actions over REST. Both paths share the chat
// service, so invalidation and broadcast behave the same.
type MessageHandler struct {
	chat MessageService
}

func NewMessageHandler(chat MessageService) *MessageHandler {
	return &MessageHandler{chat: chat}
}

type postMessageRequest struct {
	Body string `json:"body"`
}

// PostMessage handles POST /rooms/:room_id/messages.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	userID := c.GetInt("userID")
	roomID, ok := intParam(c, "room_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.chat.SendMessage(requestContext(c), userID, roomID, req.Body)
	if err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// DeleteMessage handles DELETE /messages/:message_id.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID := c.GetInt("userID")
	messageID, ok := intParam(c, "message_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	msg, err := h.chat.DeleteMessage(requestContext(c), userID, messageID)
	if err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "message_id": msg.ID, "room_id": msg.RoomID})
}

func writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message body is required"})
	case errors.Is(err, chat.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, chat.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, chat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized to delete this message"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save message"})
	}
}
