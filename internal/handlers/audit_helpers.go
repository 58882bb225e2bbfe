package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"campus-chat/internal/observability"
	"campus-chat/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// requestContext carries the request id down to audit records.
func requestContext(c *gin.Context) context.Context {
	return telemetry.WithRequestID(c.Request.Context(), requestIDFromContext(c))
}

func userIDFromContext(c *gin.Context) *int {
	if val, ok := c.Get("userID"); ok {
		if userID, ok := val.(int); ok && userID != 0 {
			return &userID
		}
	}
	return nil
}

func intParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
