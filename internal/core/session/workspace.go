package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/notify"
	"github.com/kleanup/dashboard/internal/core/resource"
	"github.com/kleanup/dashboard/internal/core/table"
)

// Workspace is the state of one logged in session. Tables are opened lazily and
// live until the session ends.
type Workspace struct {
	SessionID string
	UserID    string
	Email     string

	api     *resource.API
	catalog *catalog.Catalog
	hub     *notify.Hub
	options table.Options

	mu        sync.Mutex
	tables    map[string]*table.Controller
	lastSeen  time.Time
	expiresAt time.Time
	closed    bool
}

// Table returns the controller of the named resource.
func (w *Workspace) Table(name string) (*table.Controller, error) {
	res, err := w.catalog.Get(name)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrLoggedOut
	}
	if c, ok := w.tables[name]; ok {
		return c, nil
	}
	c := table.New(res, resource.NewClient(w.api, res), w.options)
	w.tables[name] = c
	return c, nil
}

// References resolves the reference fields of res to the labels of the records
// they can point at, keyed by field name and then by id. Each referenced table
// is loaded at most once; one that cannot be loaded is left out.
func (w *Workspace) References(ctx context.Context, res *catalog.Resource) map[string]map[string]string {
	fields := res.References()
	if len(fields) == 0 {
		return nil
	}

	out := make(map[string]map[string]string, len(fields))
	for _, f := range fields {
		tbl, err := w.Table(f.Ref)
		if err != nil {
			continue
		}
		if err := tbl.EnsureLoaded(ctx); err != nil {
			zap.S().Debugw("Reference table not loaded", "resource", res.Name, "field", f.Name, "ref", f.Ref, "error", err)
			continue
		}
		out[f.Name] = tbl.Labels()
	}
	return out
}

func (w *Workspace) Notifications() *notify.Hub {
	return w.hub
}

// API is the backend client authorised as this session's user.
func (w *Workspace) API() *resource.API {
	return w.api
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastSeen = now
	w.mu.Unlock()
}

func (w *Workspace) seen() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

// Close stops every table and ends notification subscriptions.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	tables := w.tables
	w.tables = nil
	w.mu.Unlock()

	for _, c := range tables {
		c.Close()
	}
	w.hub.Close()
}
