package logger

import (
	"time"

	"github.com/gin-gonic/gin"
)

// GinLogger logs one line per HTTP request, after the handler returns.
// WebSocket upgrades are logged when the socket closes.
func GinLogger(l Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		ctx := c.Request.Context()
		status := c.Writer.Status()
		msg := "HTTP %s %s status=%d duration_ms=%d remote_addr=%s user_agent=%q"
		args := []any{
			c.Request.Method,
			c.FullPath(),
			status,
			time.Since(start).Milliseconds(),
			c.ClientIP(),
			c.Request.UserAgent(),
		}

		if status >= 500 {
			l.Errorf(ctx, msg, args...)
			return
		}
		l.Debugf(ctx, msg, args...)
	}
}
