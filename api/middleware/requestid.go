package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxAPIKey    = "api_key"
	ctxRequestID = "request_id"

	// HeaderRequestID carries the request id in both directions.
	HeaderRequestID = "X-Request-ID"
)

// RequestLog tags every request with an id (reusing a client-supplied
// X-Request-ID) and logs one line per request through slog.
func RequestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(HeaderRequestID, id)

		c.Next()

		slog.Info("request",
			"requestId", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"clientIp", c.ClientIP(),
			"elapsed", time.Since(start).String(),
		)
	}
}

// RequestID returns the id assigned by RequestLog, or "".
func RequestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}
