package middleware

import (
	"github.com/ErlanBelekov/longrun-driver/internal/ctxid"
	"github.com/gin-gonic/gin"
)

// RequestID injects a request ID and the run ID into the context, and echoes
// the request ID in the response header. An incoming X-Request-ID is kept.
func RequestID(runID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = ctxid.NewRequestID()
		}

		ctx := ctxid.WithRequestID(c.Request.Context(), id)
		ctx = ctxid.WithRunID(ctx, runID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
