package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/metalsense/internal/engine"
	"github.com/sells-group/metalsense/internal/resilience"
	"github.com/sells-group/metalsense/internal/standards"
	"github.com/sells-group/metalsense/internal/store"
	"github.com/sells-group/metalsense/internal/worker"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "metalsense.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore connects the configured store and applies migrations.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// loadRegistry returns the tables at path, or the built-in tables when path
// is empty.
func loadRegistry(path string) (*standards.Registry, error) {
	if path == "" {
		return standards.Default(), nil
	}
	reg, err := standards.LoadFile(path)
	if err != nil {
		return nil, err
	}
	zap.L().Info("loaded standards", zap.String("path", path), zap.String("version", reg.Version()))
	return reg, nil
}

func initEngine() (*engine.Engine, error) {
	reg, err := loadRegistry(cfg.Standards.Path)
	if err != nil {
		return nil, err
	}
	return engine.New(reg), nil
}

func initAssessor(st store.Store, eng *engine.Engine) *worker.Assessor {
	policy := resilience.NewPolicy(cfg.Worker.RetryAttempts, cfg.Worker.RetryInitialBackoffMs)
	return worker.NewAssessor(st, eng, policy)
}

func temporalConfig() worker.TemporalConfig {
	return worker.TemporalConfig{
		HostPort:  cfg.Worker.Temporal.HostPort,
		Namespace: cfg.Worker.Temporal.Namespace,
		TaskQueue: cfg.Worker.Temporal.TaskQueue,
	}
}
