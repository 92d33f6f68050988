package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"groupchat-service/internal/auth"
	"groupchat-service/internal/models"
)

// AuthMiddleware validates the Authorization header with the token verifier
// and stores the authenticated user id on the context.
func AuthMiddleware(verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": models.WireError{
				Code:    models.CodeUnauthenticated,
				Message: "missing authorization",
			}})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": models.WireError{
				Code:    models.CodeUnauthenticated,
				Message: "invalid authorization header",
			}})
			return
		}

		userID, err := verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": models.WireError{
				Code:    models.CodeUnauthenticated,
				Message: "invalid token",
			}})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
