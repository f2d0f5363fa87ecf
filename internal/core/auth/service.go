package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kleanup/dashboard/config"
	"github.com/kleanup/dashboard/internal/core/resource"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotAdmin           = errors.New("You do not have admin privileges.")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrMissingSecret      = errors.New("session secret is not configured")
)

// Backend is the marketplace API's staff login surface.
type Backend interface {
	Login(ctx context.Context, email, password string) (*resource.Tokens, error)
	CurrentUser(ctx context.Context, token string) (*resource.User, error)
}

type Service struct {
	backend Backend
	config  *config.SessionConfig
	sealer  *sealer
	now     func() time.Time
}

func NewService(backend Backend, cfg *config.SessionConfig) (*Service, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	sealKey := cfg.SealKey
	if sealKey == "" {
		sealKey = cfg.Secret + ":seal"
	}
	return &Service{
		backend: backend,
		config:  cfg,
		sealer:  newSealer(sealKey),
		now:     time.Now,
	}, nil
}

// Login signs the user in on the backend and opens a dashboard session. Only
// admin accounts get one.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	tokens, err := s.backend.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.loginError(err)
	}

	u, err := s.backend.CurrentUser(ctx, tokens.AccessToken)
	if err != nil {
		return nil, s.loginError(err)
	}
	if !u.IsAdmin {
		return nil, ErrNotAdmin
	}

	user := &User{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsAdmin:   u.IsAdmin,
	}

	token, expiresAt, err := s.generateToken(user, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// loginError keeps backend failures that are not about the credentials intact,
// so callers can still tell an outage from a wrong password.
func (s *Service) loginError(err error) error {
	switch {
	case errors.Is(err, resource.ErrUnauthorized), errors.Is(err, resource.ErrValidation),
		errors.Is(err, resource.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, resource.Message(err))
	default:
		return err
	}
}

func (s *Service) generateToken(user *User, backendToken string) (string, time.Time, error) {
	sealed, err := s.sealer.seal(backendToken)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to seal backend token: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.config.ExpirationDuration())
	claims := JWTClaims{
		SessionID: uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		Sealed:    sealed,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Service) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid && claims.SessionID != "" {
		return claims, nil
	}
	return nil, ErrUnauthorized
}

// BackendToken opens the backend access token sealed in claims.
func (s *Service) BackendToken(claims *JWTClaims) (string, error) {
	token, err := s.sealer.open(claims.Sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return token, nil
}
