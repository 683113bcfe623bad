package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/notaria/backend/internal/interfaces/http/dto"
)

// SyncSecretHeader carries the shared secret configured on the sync agent
const SyncSecretHeader = "X-Sync-Secret"

// SyncSecret rejects requests whose X-Sync-Secret does not equal secret.
// An empty secret rejects everything.
func SyncSecret(secret string) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(SyncSecretHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeUnauthorized,
				"Missing or invalid sync secret",
				c.GetString("request_id"),
			))
			return
		}
		c.Next()
	}
}
