package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"live-quiz-service/internal/app"
)

const userIDKey = "user_id"

// RequireUser validates the Bearer token and stores the caller's user id on the context.
func RequireUser(tokens app.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error:   http.StatusText(http.StatusUnauthorized),
				Message: "Authorization header is required",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error:   http.StatusText(http.StatusUnauthorized),
				Message: "Invalid authorization header format",
			})
			return
		}

		userID, err := tokens.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error:   http.StatusText(http.StatusUnauthorized),
				Message: "Invalid token",
			})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
