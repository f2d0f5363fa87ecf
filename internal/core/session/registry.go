// Package session holds the per-login application state of the dashboard: the
// notification hub and the table controllers opened by one staff session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kleanup/dashboard/internal/core/audit"
	"github.com/kleanup/dashboard/internal/core/auth"
	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/listing"
	"github.com/kleanup/dashboard/internal/core/notify"
	"github.com/kleanup/dashboard/internal/core/resource"
	"github.com/kleanup/dashboard/internal/core/table"
	"github.com/kleanup/dashboard/internal/core/validation"
)

var (
	ErrLoggedOut = errors.New("session has ended")
)

// TokenOpener recovers the backend token of a session.
type TokenOpener interface {
	BackendToken(claims *auth.JWTClaims) (string, error)
}

type Config struct {
	PageSize int
	Locale   string
	// IdleTimeout ends workspaces that saw no request for this long.
	IdleTimeout time.Duration
	// SessionTTL is the lifetime of a session token.
	SessionTTL time.Duration
}

type Registry struct {
	api      *resource.API
	catalog  *catalog.Catalog
	tokens   TokenOpener
	recorder audit.Recorder
	config   Config

	sorter    *listing.Sorter
	validator *validation.Validator

	mu         sync.Mutex
	workspaces map[string]*Workspace
	// ended maps logged out sessions to the time their token expires.
	ended      map[string]time.Time
	now        func() time.Time
}

func NewRegistry(api *resource.API, cat *catalog.Catalog, tokens TokenOpener, recorder audit.Recorder, cfg Config) *Registry {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = listing.DefaultPageSize
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	return &Registry{
		api:        api,
		catalog:    cat,
		tokens:     tokens,
		recorder:   recorder,
		config:     cfg,
		sorter:     listing.NewSorter(cfg.Locale),
		validator:  validation.NewValidator(),
		workspaces: make(map[string]*Workspace),
		ended:      make(map[string]time.Time),
		now:        time.Now,
	}
}

func (r *Registry) Catalog() *catalog.Catalog {
	return r.catalog
}

// Workspace returns the workspace of the session in claims, creating it on first
// use. A session that was logged out stays out even while its token is unexpired.
func (r *Registry) Workspace(claims *auth.JWTClaims) (*Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ended[claims.SessionID]; ok {
		return nil, ErrLoggedOut
	}
	if ws, ok := r.workspaces[claims.SessionID]; ok {
		ws.touch(r.now())
		return ws, nil
	}

	token, err := r.tokens.BackendToken(claims)
	if err != nil {
		return nil, err
	}

	sid := claims.SessionID
	ws := &Workspace{
		SessionID: sid,
		UserID:    claims.UserID,
		Email:     claims.Email,
		api:       r.api.WithToken(token),
		catalog:   r.catalog,
		hub:       notify.NewHub(0),
		tables:    make(map[string]*table.Controller),
		options: table.Options{
			PageSize:  r.config.PageSize,
			Sorter:    r.sorter,
			Validator: r.validator,
			Recorder:  r.recorder,
			OnUnauthorized: func() {
				zap.S().Infow("Backend rejected session token, logging out", "session_id", sid)
				r.Logout(sid)
			},
		},
		lastSeen: r.now(),
	}
	if claims.ExpiresAt != nil {
		ws.expiresAt = claims.ExpiresAt.Time
	}
	ws.options.Notifier = ws.hub
	r.workspaces[sid] = ws
	return ws, nil
}

// Logout ends the session and releases its workspace.
func (r *Registry) Logout(sid string) bool {
	r.mu.Lock()
	ws, ok := r.workspaces[sid]
	delete(r.workspaces, sid)
	until := r.now().Add(r.config.SessionTTL)
	if ok && !ws.expiresAt.IsZero() {
		until = ws.expiresAt
	}
	r.ended[sid] = until
	r.mu.Unlock()

	if ok {
		ws.Close()
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Prune closes idle workspaces and forgets logouts whose tokens have expired.
func (r *Registry) Prune() int {
	now := r.now()
	var idle []*Workspace

	r.mu.Lock()
	for sid, ws := range r.workspaces {
		if r.config.IdleTimeout > 0 && now.Sub(ws.seen()) > r.config.IdleTimeout {
			delete(r.workspaces, sid)
			idle = append(idle, ws)
		}
	}
	for sid, until := range r.ended {
		if now.After(until) {
			delete(r.ended, sid)
		}
	}
	r.mu.Unlock()

	for _, ws := range idle {
		ws.Close()
	}
	return len(idle)
}

// Run prunes every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Prune(); n > 0 {
				zap.S().Infow("Closed idle sessions", "count", n)
			}
		}
	}
}

// Close ends every workspace.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.workspaces
	r.workspaces = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, ws := range all {
		ws.Close()
	}
}
