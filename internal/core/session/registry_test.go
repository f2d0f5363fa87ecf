package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleanup/dashboard/internal/core/auth"
	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/record"
	"github.com/kleanup/dashboard/internal/core/resource"
	"github.com/kleanup/dashboard/internal/mockapi"
)

const seed = `{
  "users": [{"id": 1, "username": "ada", "email": "admin@kleanup.test", "password": "secret", "is_admin": true}],
  "faqs": [{"id": 1, "title": "One", "content": "a"}]
}`

// plainTokens treats the sealed claim as the backend token itself.
type plainTokens struct{}

func (plainTokens) BackendToken(claims *auth.JWTClaims) (string, error) {
	if claims.Sealed == "" {
		return "", errors.New("no token")
	}
	return claims.Sealed, nil
}

type fixture struct {
	mock     *mockapi.Server
	registry *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Load("")
	require.NoError(t, err)

	store := mockapi.NewStore()
	require.NoError(t, store.Seed(strings.NewReader(seed)))
	mock := mockapi.New(store, cat, mockapi.Options{RequireAuth: true})
	ts := httptest.NewServer(mock.Handler())
	t.Cleanup(ts.Close)

	r := NewRegistry(resource.NewAPI(ts.URL), cat, plainTokens{}, nil, Config{IdleTimeout: time.Minute})
	t.Cleanup(r.Close)
	return &fixture{mock: mock, registry: r}
}

func claimsFor(sid, token string) *auth.JWTClaims {
	return &auth.JWTClaims{SessionID: sid, UserID: "1", Sealed: token}
}

func TestRegistry_WorkspaceReused(t *testing.T) {
	f := newFixture(t)
	claims := claimsFor("s1", f.mock.IssueToken("1"))

	a, err := f.registry.Workspace(claims)
	require.NoError(t, err)
	b, err := f.registry.Workspace(claims)
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := f.registry.Workspace(claimsFor("s2", f.mock.IssueToken("1")))
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, f.registry.Len())
}

func TestRegistry_TablesUseSessionToken(t *testing.T) {
	f := newFixture(t)
	ws, err := f.registry.Workspace(claimsFor("s1", f.mock.IssueToken("1")))
	require.NoError(t, err)

	tbl, err := ws.Table("faqs")
	require.NoError(t, err)
	require.NoError(t, tbl.Refresh(context.Background()))
	assert.Len(t, tbl.Collection(), 1)

	again, err := ws.Table("faqs")
	require.NoError(t, err)
	assert.Same(t, tbl, again)

	_, err = ws.Table("unknown")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestRegistry_Logout(t *testing.T) {
	f := newFixture(t)
	claims := claimsFor("s1", f.mock.IssueToken("1"))
	ws, err := f.registry.Workspace(claims)
	require.NoError(t, err)
	tbl, err := ws.Table("faqs")
	require.NoError(t, err)
	ch, _ := ws.Notifications().Subscribe()

	assert.True(t, f.registry.Logout("s1"))

	_, open := <-ch
	assert.False(t, open)
	assert.Error(t, tbl.Refresh(context.Background()))

	_, err = f.registry.Workspace(claims)
	assert.ErrorIs(t, err, ErrLoggedOut)
	_, err = ws.Table("faqs")
	assert.ErrorIs(t, err, ErrLoggedOut)
}

func TestRegistry_BackendRejectionLogsOut(t *testing.T) {
	f := newFixture(t)
	ws, err := f.registry.Workspace(claimsFor("s1", "forged"))
	require.NoError(t, err)
	tbl, err := ws.Table("faqs")
	require.NoError(t, err)

	err = tbl.Refresh(context.Background())
	assert.ErrorIs(t, err, resource.ErrUnauthorized)
	assert.Equal(t, 0, f.registry.Len())

	_, err = f.registry.Workspace(claimsFor("s1", "forged"))
	assert.ErrorIs(t, err, ErrLoggedOut)
}

func TestRegistry_PruneIdle(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.registry.now = func() time.Time { return now }

	_, err := f.registry.Workspace(claimsFor("s1", "t"))
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 0, f.registry.Prune())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, f.registry.Prune())
	assert.Equal(t, 0, f.registry.Len())

	_, err = f.registry.Workspace(claimsFor("s1", "t"))
	assert.NoError(t, err, "an idle session is reopened, not logged out")
}

func TestRegistry_PruneForgetsExpiredLogouts(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.registry.now = func() time.Time { return now }

	f.registry.Logout("gone")
	_, err := f.registry.Workspace(claimsFor("gone", "t"))
	assert.ErrorIs(t, err, ErrLoggedOut)

	now = now.Add(13 * time.Hour)
	f.registry.Prune()
	f.registry.mu.Lock()
	_, remembered := f.registry.ended["gone"]
	f.registry.mu.Unlock()
	assert.False(t, remembered)
}

func TestRegistry_BadSealedToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Workspace(claimsFor("s1", ""))
	assert.Error(t, err)
	assert.Equal(t, 0, f.registry.Len())
}

func TestWorkspace_References(t *testing.T) {
	f := newFixture(t)
	_, err := f.mock.Store().Create("applications", record.Record{"id": 7, "user_id": 1, "status": "Pending"})
	require.NoError(t, err)

	ws, err := f.registry.Workspace(claimsFor("s1", f.mock.IssueToken("1")))
	require.NoError(t, err)
	apps, err := ws.Table("applications")
	require.NoError(t, err)

	refs := ws.References(context.Background(), apps.Resource())
	assert.Equal(t, map[string]map[string]string{"user_id": {"1": "ada"}}, refs)

	faqs, err := ws.Table("faqs")
	require.NoError(t, err)
	refs = ws.References(context.Background(), faqs.Resource())
	assert.Equal(t, map[string]map[string]string{"category": {}}, refs, "empty referenced table")

	roles, err := ws.Table("roles")
	require.NoError(t, err)
	assert.Nil(t, ws.References(context.Background(), roles.Resource()))
}
