package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kleanup/dashboard/internal/core/auth"
	"github.com/kleanup/dashboard/internal/core/session"
	"github.com/kleanup/dashboard/internal/core/table"
)

const (
	ContextUserID    = "user_id"
	ContextSessionID = "session_id"
	ContextClaims    = "claims"
	ContextWorkspace = "workspace"
)

type TokenValidator interface {
	ValidateToken(token string) (*auth.JWTClaims, error)
}

type Workspaces interface {
	Workspace(claims *auth.JWTClaims) (*session.Workspace, error)
}

type AuthMiddleware struct {
	tokens     TokenValidator
	workspaces Workspaces
}

func NewAuthMiddleware(tokens TokenValidator, workspaces Workspaces) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, workspaces: workspaces}
}

// Authenticate resolves the session token to its workspace. Browsers cannot set
// headers on websocket upgrades, so the token may also come as ?token=.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ws, err := m.workspaces.Workspace(claims)
		if err != nil {
			if errors.Is(err, session.ErrLoggedOut) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session has ended"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextSessionID, claims.SessionID)
		c.Set(ContextWorkspace, ws)

		actor := table.Actor{
			SessionID: claims.SessionID,
			UserID:    claims.UserID,
			IPAddress: GetIPAddress(c),
			UserAgent: GetUserAgent(c),
		}
		c.Request = c.Request.WithContext(table.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errors.New("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization header")
	}
	return parts[1], nil
}

// Helper functions to get context values
func GetUserID(c *gin.Context) (string, bool) {
	val, exists := c.Get(ContextUserID)
	if !exists {
		return "", false
	}
	id, ok := val.(string)
	return id, ok
}

func GetSessionID(c *gin.Context) (string, bool) {
	val, exists := c.Get(ContextSessionID)
	if !exists {
		return "", false
	}
	id, ok := val.(string)
	return id, ok
}

func GetClaims(c *gin.Context) (*auth.JWTClaims, bool) {
	val, exists := c.Get(ContextClaims)
	if !exists {
		return nil, false
	}
	claims, ok := val.(*auth.JWTClaims)
	return claims, ok
}

func GetWorkspace(c *gin.Context) (*session.Workspace, bool) {
	val, exists := c.Get(ContextWorkspace)
	if !exists {
		return nil, false
	}
	ws, ok := val.(*session.Workspace)
	return ws, ok && ws != nil
}
