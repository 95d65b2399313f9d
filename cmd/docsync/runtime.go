package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"chronicle/docsync/internal/app"
	"chronicle/docsync/internal/config"
	"chronicle/docsync/internal/gitrepo"
	"chronicle/docsync/internal/search"
	"chronicle/docsync/internal/session"
	"chronicle/docsync/internal/store"
	"chronicle/docsync/internal/telemetry"
)

// runtime holds everything a command needs to publish documents.
type runtime struct {
	cfg     config.Config
	db      *sql.DB
	service *app.Service
	search  *search.Service
	meter   *telemetry.Meter
	closers []func() error
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	driver, err := store.NormalizeDriver(cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	if driver == store.DriverPostgres {
		return store.Open(ctx, cfg.DatabaseURL)
	}
	if err := ensureDatabaseDir(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	return store.OpenSQLite(ctx, cfg.DatabaseURL)
}

// ensureDatabaseDir creates the parent directory of a SQLite database file.
func ensureDatabaseDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}
	return nil
}

func openRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.db = db
	rt.closers = append(rt.closers, db.Close)

	if err := store.ApplyMigrations(cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	var published *gitrepo.Store
	switch cfg.PublishedBackend {
	case "git":
		published, err = gitrepo.Open(cfg.PublishedRepoDir, cfg.PublishedBranch, cfg.PublishAuthor)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open published repository: %w", err)
		}
		logger.Info("Publishing into git repository", "dir", cfg.PublishedRepoDir, "branch", cfg.PublishedBranch)
	case "sql", "":
		logger.Info("Publishing into SQL workspace", "workspace", cfg.PublishedWorkspace)
	default:
		rt.Close()
		return nil, fmt.Errorf("unsupported published backend %q", cfg.PublishedBackend)
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		rt.closers = append(rt.closers, func() error { meili.Close(); return nil })
	}
	if meili != nil {
		rt.search = search.NewService(meili, logger)
	} else {
		rt.search = search.NewService(nil, logger)
	}

	meter, err := telemetry.NewMeter(ctx, cfg.MetricsEnabled, telemetry.DefaultServiceName)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.meter = meter
	rt.closers = append(rt.closers, func() error { return meter.Shutdown(context.Background()) })
	metrics, err := telemetry.NewSyncMetrics(meter.Provider)
	if err != nil {
		rt.Close()
		return nil, err
	}

	workspaces := store.NewWorkspaces(db, cfg.DraftWorkspace, cfg.PublishedWorkspace)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		sessions, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, sessions.Close)
		logger.Info("Using Redis for session registries")
		rt.service = app.NewWithSessionStore(workspaces, sessions, published, rt.search)
	} else {
		logger.Info("Using in-memory session registries")
		rt.service = app.New(workspaces, published, rt.search)
	}
	rt.service.WithMetrics(metrics).WithLogger(logger)
	return rt, nil
}

// Close waits for pending index operations and releases resources in reverse
// order of acquisition.
func (rt *runtime) Close() error {
	rt.search.Wait()
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
