package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the staff account as the dashboard exposes it.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
}

// Request/Response types
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// JWTClaims identify a dashboard session. The backend access token travels
// sealed inside them, so the server keeps no token store.
type JWTClaims struct {
	SessionID string `json:"sid"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Sealed    string `json:"sealed"`
	jwt.RegisteredClaims
}
