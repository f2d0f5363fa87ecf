package resource

import (
	"context"
	"net/http"

	"github.com/kleanup/dashboard/internal/core/record"
)

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// User is the account behind a backend access token.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
}

// Login exchanges credentials for backend tokens.
func (a *API) Login(ctx context.Context, email, password string) (*Tokens, error) {
	var tokens Tokens
	if err := a.doJSON(ctx, http.MethodPost, "auth/login", Credentials{Email: email, Password: password}, "", &tokens); err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, &Error{Kind: KindAuth, Status: http.StatusOK, Message: "Access token not provided"}
	}
	return &tokens, nil
}

// CurrentUser fetches the account token belongs to.
func (a *API) CurrentUser(ctx context.Context, token string) (*User, error) {
	var raw record.Record
	if err := a.doJSON(ctx, http.MethodGet, "auth/user", nil, token, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &Error{Kind: KindServer, Message: "unexpected response from server"}
	}

	u := &User{}
	u.ID, _ = raw.IDOf("id")
	u.Email, _ = raw["email"].(string)
	u.Username, _ = raw["username"].(string)
	u.FirstName, _ = raw["first_name"].(string)
	u.LastName, _ = raw["last_name"].(string)
	u.IsAdmin, _ = raw["is_admin"].(bool)
	return u, nil
}
