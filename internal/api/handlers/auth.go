package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kleanup/dashboard/internal/api/middleware"
	"github.com/kleanup/dashboard/internal/core/audit"
	"github.com/kleanup/dashboard/internal/core/auth"
	"github.com/kleanup/dashboard/internal/core/resource"
)

type Authenticator interface {
	Login(ctx context.Context, req *auth.LoginRequest) (*auth.AuthResponse, error)
}

// Sessions ends dashboard sessions.
type Sessions interface {
	Logout(sid string) bool
}

type AuthHandler struct {
	authService Authenticator
	sessions    Sessions
	recorder    audit.Recorder
}

func NewAuthHandler(authService Authenticator, sessions Sessions, recorder audit.Recorder) *AuthHandler {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &AuthHandler{authService: authService, sessions: sessions, recorder: recorder}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	entry := &audit.Entry{
		Action:    audit.ActionLogin,
		Resource:  "auth",
		IPAddress: middleware.GetIPAddress(c),
		UserAgent: middleware.GetUserAgent(c),
		NewData:   map[string]any{"email": req.Email},
	}
	if err != nil {
		entry.Result = audit.ResultFailure
		entry.Message = err.Error()
		h.recorder.Record(c.Request.Context(), entry)

		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		case errors.Is(err, auth.ErrNotAdmin):
			c.JSON(http.StatusForbidden, gin.H{"error": auth.ErrNotAdmin.Error()})
		case errors.Is(err, resource.ErrNetwork):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": resource.Message(err)})
		case errors.Is(err, resource.ErrServer):
			c.JSON(http.StatusBadGateway, gin.H{"error": resource.Message(err)})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		}
		return
	}

	entry.Result = audit.ResultSuccess
	if resp.User != nil {
		entry.UserID = resp.User.ID
	}
	h.recorder.Record(c.Request.Context(), entry)

	c.JSON(http.StatusOK, resp)
}

// Logout ends the session: its tables are closed, its notification streams end
// and its token is refused from now on.
func (h *AuthHandler) Logout(c *gin.Context) {
	sid, ok := middleware.GetSessionID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	h.sessions.Logout(sid)

	userID, _ := middleware.GetUserID(c)
	h.recorder.Record(c.Request.Context(), &audit.Entry{
		SessionID: sid,
		UserID:    userID,
		Action:    audit.ActionLogout,
		Resource:  "auth",
		Result:    audit.ResultSuccess,
		IPAddress: middleware.GetIPAddress(c),
		UserAgent: middleware.GetUserAgent(c),
	})

	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	resp := gin.H{
		"id":         claims.UserID,
		"email":      claims.Email,
		"session_id": claims.SessionID,
	}
	if claims.ExpiresAt != nil {
		resp["expires_at"] = claims.ExpiresAt.Time
	}
	c.JSON(http.StatusOK, resp)
}
