package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextIPAddress = "ip_address"
	ContextUserAgent = "user_agent"
	ContextRequestID = "request_id"

	HeaderRequestID = "X-Request-ID"
)

// AuditMiddleware records who is calling: client address, user agent and a
// request id that is echoed back in the response.
func AuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextIPAddress, clientIP(c))
		c.Set(ContextUserAgent, c.GetHeader("User-Agent"))

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Set(ContextRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		c.Next()
	}
}

// clientIP prefers proxy headers; X-Forwarded-For may list a chain, the first
// entry is the client.
func clientIP(c *gin.Context) string {
	ip := c.GetHeader("X-Forwarded-For")
	if ip == "" {
		ip = c.GetHeader("X-Real-IP")
	}
	if ip == "" {
		ip = c.ClientIP()
	}
	if idx := strings.Index(ip, ","); idx != -1 {
		ip = ip[:idx]
	}
	return strings.TrimSpace(ip)
}

func GetIPAddress(c *gin.Context) string {
	return c.GetString(ContextIPAddress)
}

func GetUserAgent(c *gin.Context) string {
	return c.GetString(ContextUserAgent)
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextRequestID)
}
