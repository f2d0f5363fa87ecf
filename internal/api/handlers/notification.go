package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kleanup/dashboard/internal/api/middleware"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsReadTimeout  = wsPingInterval * 2
)

type NotificationHandler struct {
	upgrader websocket.Upgrader
}

// NewNotificationHandler accepts websocket upgrades from the given origins; an
// empty list keeps gorilla's same-origin check.
func NewNotificationHandler(allowedOrigins []string) *NotificationHandler {
	h := &NotificationHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]bool, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		}
	}
	return h
}

// List returns the session's recent notifications, oldest first.
func (h *NotificationHandler) List(c *gin.Context) {
	ws, ok := middleware.GetWorkspace(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": ws.Notifications().Recent()})
}

// Stream pushes each new notification of the session as a JSON text frame. The
// stream ends on logout, when the client goes away, or on a write timeout.
func (h *NotificationHandler) Stream(c *gin.Context) {
	ws, ok := middleware.GetWorkspace(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.S().Debugw("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	notes, unsubscribe := ws.Notifications().Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reads only serve control frames; any read error ends the stream.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, open := <-notes:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !open {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
