package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleanup/dashboard/config"
	"github.com/kleanup/dashboard/internal/core/resource"
)

func TestNewBackend_KeepsTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	api := newBackend(&config.APIConfig{BaseURL: slow.URL + "/", Timeout: 50 * time.Millisecond})
	assert.Equal(t, slow.URL, api.BaseURL())

	_, err := api.Login(context.Background(), "admin@kleanup.test", "secret")
	require.Error(t, err)
	assert.Equal(t, resource.KindNetwork, resource.KindOf(err))
}

func TestRun_BadCatalog(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Secret = "test-secret"
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")

	assert.Error(t, run(context.Background(), cfg))
}

func TestRun_MissingSecret(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Secret = ""

	assert.Error(t, run(context.Background(), cfg))
}

func TestRun_StopsWithContext(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Secret = "test-secret"
	cfg.Server.Port = "0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
