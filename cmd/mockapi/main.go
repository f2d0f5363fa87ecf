package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"go.uber.org/zap"

	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/mockapi"
)

const version = "0.1.0"

const usage = `In-memory marketplace backend for local dashboard development.

Usage:
    mockapi [--addr=<addr>] [--seed=<file>] [--catalog=<file>] [--require-auth]
    mockapi -h | --help
    mockapi --version

Options:
    -h --help         Show this screen.
    --version         Show version.
    --addr=<addr>     Listen address [default: :9090].
    --seed=<file>     JSON file of records keyed by resource name.
    --catalog=<file>  Resource catalog; the embedded default when omitted.
    --require-auth    Reject collection requests without a login token.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		panic(err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	addr, _ := opts.String("--addr")
	seedPath, _ := opts.String("--seed")
	catalogPath, _ := opts.String("--catalog")
	requireAuth, _ := opts.Bool("--require-auth")

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		sugar.Fatalw("Failed to load catalog", "error", err)
	}

	store := mockapi.NewStore()
	server := mockapi.New(store, cat, mockapi.Options{RequireAuth: requireAuth})
	if seedPath != "" {
		if err := store.SeedFile(seedPath); err != nil {
			sugar.Fatalw("Failed to seed store", "path", seedPath, "error", err)
		}
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	sugar.Infow("Mock backend listening", "addr", addr, "resources", len(cat.Resources), "require_auth", requireAuth)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugar.Fatalw("Server error", "error", err)
	}
}
