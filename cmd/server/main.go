package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kleanup/dashboard/config"
	"github.com/kleanup/dashboard/internal/api"
	"github.com/kleanup/dashboard/internal/api/handlers"
	"github.com/kleanup/dashboard/internal/api/middleware"
	"github.com/kleanup/dashboard/internal/core/audit"
	"github.com/kleanup/dashboard/internal/core/auth"
	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/resource"
	"github.com/kleanup/dashboard/internal/core/session"
	"github.com/kleanup/dashboard/internal/storage/postgres"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.Log.Development)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		sugar.Errorw("Server stopped", "error", err)
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// backendIdleConns sizes the connection pool shared by every session's tables.
const backendIdleConns = 32

func newBackend(cfg *config.APIConfig) *resource.API {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = backendIdleConns
	return resource.NewAPI(cfg.BaseURL,
		resource.WithHTTPClient(&http.Client{Transport: transport}),
		resource.WithTimeout(cfg.Timeout),
	)
}

func run(ctx context.Context, cfg *config.Config) error {
	sugar := zap.S()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	sugar.Infow("Catalog loaded", "resources", len(cat.Resources), "metrics", len(cat.Metrics))

	backend := newBackend(&cfg.API)

	authService, err := auth.NewService(backend, &cfg.Session)
	if err != nil {
		return err
	}

	// The audit log needs a database; without one entries are dropped.
	var recorder audit.Recorder = audit.NopRecorder{}
	var auditLog handlers.AuditQuerier
	if cfg.Database.Enabled {
		db, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		sugar.Infow("Connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

		repo := audit.NewRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		auditService := audit.NewService(repo)
		recorder = auditService
		auditLog = auditService
	} else {
		sugar.Warn("Database disabled, audit log is not persisted")
	}

	registry := session.NewRegistry(backend, cat, authService, recorder, session.Config{
		PageSize:    cfg.Table.PageSize,
		Locale:      cfg.Table.Locale,
		IdleTimeout: cfg.Session.IdleTimeout,
		SessionTTL:  cfg.Session.ExpirationDuration(),
	})
	defer registry.Close()
	go registry.Run(ctx, time.Minute)

	router := api.NewRouter(
		middleware.NewAuthMiddleware(authService, registry),
		handlers.NewAuthHandler(authService, registry, recorder),
		handlers.NewResourceHandler(cat),
		handlers.NewNotificationHandler(cfg.Server.AllowedOrigins),
		handlers.NewAdminHandler(cat, auditLog),
	)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.Setup(cfg.Server.Mode),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("Starting server", "port", cfg.Server.Port, "backend", backend.BaseURL())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sugar.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
