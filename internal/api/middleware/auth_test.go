package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kleanup/dashboard/internal/core/auth"
	"github.com/kleanup/dashboard/internal/core/session"
	"github.com/kleanup/dashboard/internal/core/table"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Helper to create test context
func createTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	return c, w
}

type stubTokens map[string]*auth.JWTClaims

func (s stubTokens) ValidateToken(token string) (*auth.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, errors.New("bad token")
}

type stubWorkspaces struct {
	ended map[string]bool
}

func (s stubWorkspaces) Workspace(claims *auth.JWTClaims) (*session.Workspace, error) {
	if s.ended[claims.SessionID] {
		return nil, session.ErrLoggedOut
	}
	return &session.Workspace{SessionID: claims.SessionID, UserID: claims.UserID}, nil
}

func newTestMiddleware(ended ...string) *AuthMiddleware {
	tokens := stubTokens{
		"good":  {SessionID: "s1", UserID: "1", Email: "admin@example.com"},
		"ended": {SessionID: "s2", UserID: "1"},
	}
	ws := stubWorkspaces{ended: map[string]bool{}}
	for _, sid := range ended {
		ws.ended[sid] = true
	}
	return NewAuthMiddleware(tokens, ws)
}

func runAuthenticate(m *AuthMiddleware, req *http.Request) (*httptest.ResponseRecorder, *gin.Context, bool) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Set(ContextIPAddress, "10.0.0.9")

	m.Authenticate()(c)
	return w, c, !c.IsAborted()
}

func TestAuthenticate_ValidBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good")

	_, c, reached := runAuthenticate(newTestMiddleware(), req)
	if !reached {
		t.Fatal("request with a valid token should pass")
	}

	if id, ok := GetUserID(c); !ok || id != "1" {
		t.Errorf("GetUserID() = %q, %v", id, ok)
	}
	if sid, ok := GetSessionID(c); !ok || sid != "s1" {
		t.Errorf("GetSessionID() = %q, %v", sid, ok)
	}
	if ws, ok := GetWorkspace(c); !ok || ws.SessionID != "s1" {
		t.Error("workspace should be set")
	}
	if claims, ok := GetClaims(c); !ok || claims.Email != "admin@example.com" {
		t.Error("claims should be set")
	}

	actor := table.ActorFrom(c.Request.Context())
	if actor.SessionID != "s1" || actor.IPAddress != "10.0.0.9" {
		t.Errorf("unexpected actor %+v", actor)
	}
}

func TestAuthenticate_QueryToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/notifications/ws?token=good", nil)

	_, _, reached := runAuthenticate(newTestMiddleware(), req)
	if !reached {
		t.Error("token query parameter should be accepted")
	}
}

func TestAuthenticate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", "missing authorization header"},
		{"no scheme", "good", "invalid authorization header"},
		{"wrong scheme", "ApiKey good", "invalid authorization header"},
		{"unknown token", "Bearer nope", "invalid token"},
		{"logged out", "Bearer ended", "session has ended"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			w, _, reached := runAuthenticate(newTestMiddleware("s2"), req)
			if reached {
				t.Fatal("request should be rejected")
			}
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body %q should contain %q", w.Body.String(), tt.want)
			}
		})
	}
}

// Test GetUserID helper function
func TestGetUserID_NotSet(t *testing.T) {
	c, _ := createTestContext()

	if _, ok := GetUserID(c); ok {
		t.Error("GetUserID should return false when not set")
	}
}

func TestGetUserID_InvalidType(t *testing.T) {
	c, _ := createTestContext()
	c.Set(ContextUserID, 42)

	if _, ok := GetUserID(c); ok {
		t.Error("GetUserID should return false for a non-string value")
	}
}

func TestGetWorkspace_NotSet(t *testing.T) {
	c, _ := createTestContext()

	if _, ok := GetWorkspace(c); ok {
		t.Error("GetWorkspace should return false when not set")
	}
}

func TestAuditMiddleware_ForwardedFor(t *testing.T) {
	c, w := createTestContext()
	c.Request.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	c.Request.Header.Set("User-Agent", "dashctl/1.0")

	AuditMiddleware()(c)

	if got := GetIPAddress(c); got != "203.0.113.7" {
		t.Errorf("GetIPAddress() = %q", got)
	}
	if got := GetUserAgent(c); got != "dashctl/1.0" {
		t.Errorf("GetUserAgent() = %q", got)
	}
	if GetRequestID(c) == "" || w.Header().Get(HeaderRequestID) != GetRequestID(c) {
		t.Error("request id should be generated and echoed")
	}
}

func TestAuditMiddleware_KeepsRequestID(t *testing.T) {
	c, _ := createTestContext()
	c.Request.Header.Set(HeaderRequestID, "req-123")

	AuditMiddleware()(c)

	if got := GetRequestID(c); got != "req-123" {
		t.Errorf("GetRequestID() = %q", got)
	}
}
