package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request through the global zap logger.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", GetIPAddress(c),
			"request_id", GetRequestID(c),
		}
		if sid, ok := GetSessionID(c); ok {
			fields = append(fields, "session_id", sid)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			zap.S().Errorw("Request failed", fields...)
		case status >= 400:
			zap.S().Warnw("Request rejected", fields...)
		default:
			zap.S().Infow("Request", fields...)
		}
	}
}
