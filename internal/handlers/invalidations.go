package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-chat/internal/invalidation"
)

// ChangeNotifier accepts model changes for asynchronous invalidation.
type ChangeNotifier interface {
	Changed(ctx context.Context, change invalidation.Change)
}

// InvalidationHandler receives model changes from the services that own rooms, users and
// topics.
type InvalidationHandler struct {
	notifier ChangeNotifier
}

func NewInvalidationHandler(notifier ChangeNotifier) *InvalidationHandler {
	return &InvalidationHandler{notifier: notifier}
}

// PostChange handles POST /internal/invalidations.
func (h *InvalidationHandler) PostChange(c *gin.Context) {
	var change invalidation.Change
	if err := c.ShouldBindJSON(&change); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := change.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.notifier.Changed(context.WithoutCancel(c.Request.Context()), change)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
