package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-chat/internal/auth"
)

// AuthMiddleware validates the bearer token of the Authorization header and stores the
// caller's id under "userID".
func AuthMiddleware(validator auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token := auth.BearerToken(header)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		identity, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUpstream) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication unavailable"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", identity.UserID)
		c.Next()
	}
}
