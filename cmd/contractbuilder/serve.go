package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"contractbuilder/internal/auth"
	"contractbuilder/internal/cache"
	"contractbuilder/internal/compiler"
	"contractbuilder/internal/config"
	"contractbuilder/internal/contracts"
	"contractbuilder/internal/database"
	"contractbuilder/internal/handlers"
	"contractbuilder/internal/middleware"
	"contractbuilder/internal/router"
	"contractbuilder/internal/storage"
	"contractbuilder/internal/store"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API (default)",
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	slog.Info("configuration loaded",
		"env", cfg.App.Env,
		"addr", cfg.Addr(),
	)

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Seed development data (no-op if data already exists).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			return err
		}
	}

	svc, valkeyClient, err := buildService(cfg, db)
	if err != nil {
		return err
	}
	if valkeyClient != nil {
		defer valkeyClient.Close()
	}

	if cfg.Auth.Secret == "" {
		slog.Warn("auth secret not configured; authoring endpoints will reject every request")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	checks := map[string]handlers.Checker{"database": db.PingContext}
	if valkeyClient != nil {
		checks["valkey"] = func(ctx context.Context) error { return valkeyClient.Ping(ctx).Err() }
	}

	r := router.New(router.Deps{
		Templates:      handlers.NewTemplates(svc),
		Health:         handlers.NewHealth(checks),
		Verifier:       auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer),
		CompileLimiter: limiter,
	})

	// WriteTimeout must outlast the slowest compilation.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Typst.Timeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Typst.Timeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openDatabase connects to PostgreSQL and applies pending migrations.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// buildService assembles the compilation pipeline with its optional cache
// and archive. The returned Valkey client is nil when caching is disabled.
func buildService(cfg *config.Config, db *sql.DB) (*contracts.Service, *redis.Client, error) {
	comp, err := compiler.New(compiler.Options{
		Binary:        cfg.Typst.Bin,
		WorkDir:       cfg.Typst.WorkDir,
		Timeout:       cfg.Typst.Timeout,
		MaxConcurrent: cfg.Typst.MaxConcurrent,
	})
	if err != nil {
		return nil, nil, err
	}

	var opts []contracts.Option
	var valkeyClient *redis.Client

	if cfg.CacheEnabled() {
		valkeyClient, err = cache.ConnectValkey(cfg.Valkey.Host, cfg.Valkey.Port, cfg.Valkey.Password)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, contracts.WithCache(cache.NewPDFCache(valkeyClient, cfg.PDF.CacheTTL)))
		slog.Info("pdf cache enabled", "ttl", cfg.PDF.CacheTTL)
	}

	archive, err := storage.New(cfg.S3.Endpoint, cfg.S3.Region, cfg.S3.AccessKey, cfg.S3.SecretKey,
		cfg.S3.Bucket, cfg.S3.URLExpiry)
	if err != nil {
		if valkeyClient != nil {
			valkeyClient.Close()
		}
		return nil, nil, err
	}
	if archive != nil {
		opts = append(opts, contracts.WithArchive(archive))
		slog.Info("s3 archive connected", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
	} else {
		slog.Warn("s3 storage not configured; compiled documents are not archived")
	}

	return contracts.NewService(store.NewTemplateStore(db), comp, opts...), valkeyClient, nil
}
