package ws

import (
	"errors"

	"github.com/google/uuid"

	"campus-chat/internal/chat"
)

func newConnID() string {
	return uuid.NewString()
}

// errorText maps a chat failure to the text sent back to the requesting session.
func errorText(err error) string {
	switch {
	case errors.Is(err, chat.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, chat.ErrMessageNotFound):
		return "Message not found"
	case errors.Is(err, chat.ErrForbidden):
		return "Unauthorized to delete this message."
	case errors.Is(err, chat.ErrValidation):
		return "Message body is required"
	default:
		return "Something went wrong, please try again."
	}
}
