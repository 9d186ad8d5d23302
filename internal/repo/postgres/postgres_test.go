package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/infrawatch/internal/repo"
	"github.com/hamed0406/infrawatch/internal/repo/repotest"
)

// go test ./internal/repo/postgres -count=1 with DATABASE_URL pointing at a scratch database.

func resetSchema(t *testing.T, dsn string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE alerts, results, checks, assets`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	repotest.Run(t, func(t *testing.T) repo.Store {
		resetSchema(t, dsn)
		store, err := New(context.Background(), dsn, zap.NewNop())
		if err != nil {
			t.Fatalf("New store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestPostgresStore_BadDSN(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := New(ctx, "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", zap.NewNop()); err == nil {
		t.Fatalf("expected connection error")
	}
}
