package middleware

import (
	"kidchat/internal/idgen"

	"github.com/gin-gonic/gin"
)

// RequestIDKey is both the header name and the gin context key
const RequestIDKey = "X-Request-ID"

// maxRequestIDLen bounds client-supplied ids before they reach the logs
const maxRequestIDLen = 128

// RequestID echoes the app's request ID, or assigns one, so the device log
// and the stub log carry the same value for a call
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDKey)
		if id == "" || len(id) > maxRequestIDLen {
			id = idgen.NewRequest()
		}
		c.Set(RequestIDKey, id)
		c.Writer.Header().Set(RequestIDKey, id)
		c.Next()
	}
}
