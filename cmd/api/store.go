package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/infrawatch/internal/config"
	"github.com/hamed0406/infrawatch/internal/repo"
	"github.com/hamed0406/infrawatch/internal/repo/bolt"
	"github.com/hamed0406/infrawatch/internal/repo/memory"
	"github.com/hamed0406/infrawatch/internal/repo/postgres"
	"github.com/hamed0406/infrawatch/internal/repo/sqlite"
)

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repo.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DatabaseURL, log)
	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath, log)
	case config.DriverBolt:
		return bolt.Open(cfg.BoltPath, log)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
