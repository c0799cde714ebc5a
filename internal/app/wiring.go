package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"airwaves/api/internal/archive"
	"airwaves/api/internal/config"
	"airwaves/api/internal/repair"
	"airwaves/api/internal/runlog"
	"airwaves/api/internal/store"
)

// OpenStore returns the configured registry store. For postgres it also
// applies pending migrations. The returned func releases the connection.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return store.NewMemoryStore(), func() {}, nil
	case config.BackendPostgres:
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		applied, err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir))
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", zap.Strings("versions", applied))
		}
		return store.NewPostgresStore(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// RepairBackends are the optional sinks for finished repair runs.
type RepairBackends struct {
	Runs    *runlog.RedisStore
	Archive *archive.Archive
}

// Hooks adapts the configured sinks to repair completion hooks.
func (b RepairBackends) Hooks(logger *zap.Logger) []repair.Hook {
	var hooks []repair.Hook
	if b.Runs != nil {
		hooks = append(hooks, b.Runs.Hook(logger))
	}
	if b.Archive != nil {
		hooks = append(hooks, b.Archive.Hook())
	}
	return hooks
}

// Close releases the Redis connection, if any.
func (b RepairBackends) Close() {
	if b.Runs != nil {
		_ = b.Runs.Close()
	}
}

// OpenRepairBackends connects to Redis and object storage when configured.
// A backend that cannot be reached is logged and left out.
func OpenRepairBackends(ctx context.Context, cfg config.Config, logger *zap.Logger) RepairBackends {
	var backends RepairBackends
	if strings.TrimSpace(cfg.RedisURL) != "" {
		runs, err := runlog.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Warn("repair run history disabled", zap.Error(err))
		} else {
			backends.Runs = runs
		}
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		reports, err := archive.New(ctx, archive.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, logger)
		if err != nil {
			logger.Warn("repair report archive disabled", zap.Error(err))
		} else {
			backends.Archive = reports
		}
	}
	return backends
}
