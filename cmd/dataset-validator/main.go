package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terra-clan/dataset-validator/internal/api"
	"github.com/terra-clan/dataset-validator/internal/cache"
	"github.com/terra-clan/dataset-validator/internal/cleanup"
	"github.com/terra-clan/dataset-validator/internal/config"
	"github.com/terra-clan/dataset-validator/internal/datasets"
	"github.com/terra-clan/dataset-validator/internal/runs"
	"github.com/terra-clan/dataset-validator/internal/services"
	"github.com/terra-clan/dataset-validator/internal/storage"
	"github.com/terra-clan/dataset-validator/internal/validation"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("starting dataset-validator",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"parallel", cfg.Engine.Parallel,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	registry := services.NewRegistry()

	repo, err := openRepository(initCtx, cfg.Database, registry)
	if err != nil {
		slog.Error("failed to create run repository", "error", err)
		os.Exit(1)
	}

	var findingsCache *cache.FindingsCache
	if cfg.Redis.Enabled {
		rdb, err := cache.Connect(initCtx, cache.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()

		findingsCache = cache.NewFindingsCache(rdb, cfg.Redis.CacheTTL)
		registry.Register("redis", services.NewRedisChecker(rdb))
		slog.Info("findings cache enabled", "address", cfg.Redis.Address, "ttl", cfg.Redis.CacheTTL)
	}

	// Load bundled datasets
	loader := datasets.NewLoader()
	if err := loader.LoadFromDir(cfg.Datasets.Dir); err != nil {
		slog.Warn("failed to load datasets from dir", "dir", cfg.Datasets.Dir, "error", err)
	}

	engine := validation.New(
		validation.WithParallel(cfg.Engine.Parallel),
		validation.WithMaxWorkers(cfg.Engine.MaxWorkers),
	)
	svc := runs.NewService(repo, findingsCache, engine, loader)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup worker
	cleaner := cleanup.NewCleaner(svc, cfg.Cleanup.Interval, cfg.Cleanup.Retention)
	cleaner.Start(ctx)

	var auth *api.AuthMiddleware
	if cfg.Auth.Enabled {
		auth = api.NewAuthMiddleware(repo)
	} else {
		slog.Warn("api authentication disabled")
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, svc, loader, registry, auth)
	httpServer := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := registry.Close(); err != nil {
		slog.Error("registry close error", "error", err)
	}

	if err := repo.Close(); err != nil {
		slog.Error("repository close error", "error", err)
	}

	slog.Info("dataset-validator stopped")
}

// openRepository connects to PostgreSQL and applies migrations, or falls back
// to an in-memory repository when no DSN is configured.
func openRepository(ctx context.Context, cfg config.DatabaseConfig, registry *services.Registry) (storage.Repository, error) {
	if cfg.DSN == "" {
		slog.Warn("no database configured, run history is kept in memory")
		return storage.NewMemoryRepository(), nil
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.DSN,
		MaxOpenConns: int32(cfg.MaxOpenConns),
		MaxIdleConns: int32(cfg.MaxIdleConns),
		MaxLifetime:  cfg.MaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("database connected successfully")

	if cfg.AutoMigrate {
		slog.Info("running database migrations", "dir", cfg.MigrationsDir)
		if err := storage.RunMigrations(ctx, repo.DB(), cfg.MigrationsDir); err != nil {
			repo.Close()
			return nil, err
		}
	}

	checker, err := services.NewPostgresChecker(cfg.DSN)
	if err != nil {
		repo.Close()
		return nil, err
	}
	registry.Register("postgres", checker)

	return repo, nil
}
