package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/infrawatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Schema is applied on startup; every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS assets (
  id          TEXT PRIMARY KEY,
  name        TEXT NOT NULL UNIQUE,
  type        TEXT NOT NULL DEFAULT 'other',
  address     TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  tags        TEXT NOT NULL DEFAULT '',
  enabled     BOOLEAN NOT NULL DEFAULT TRUE,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS checks (
  id                 TEXT PRIMARY KEY,
  asset_id           TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
  name               TEXT NOT NULL,
  kind               TEXT NOT NULL,
  target             TEXT NOT NULL DEFAULT '',
  port               INTEGER NULL,
  interval_seconds   INTEGER NOT NULL DEFAULT 60,
  timeout_seconds    INTEGER NOT NULL DEFAULT 5,
  expected_status    INTEGER NOT NULL DEFAULT 200,
  ssl_days_threshold INTEGER NOT NULL DEFAULT 14,
  enabled            BOOLEAN NOT NULL DEFAULT TRUE,
  last_run_at        TIMESTAMPTZ NULL,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (asset_id, name)
);

CREATE TABLE IF NOT EXISTS results (
  id          BIGSERIAL PRIMARY KEY,
  check_id    TEXT NOT NULL REFERENCES checks(id) ON DELETE CASCADE,
  asset_id    TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
  ok          BOOLEAN NOT NULL,
  status_code INTEGER NULL,
  message     TEXT NOT NULL DEFAULT '',
  latency_ms  DOUBLE PRECISION NULL,
  recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_recorded_at ON results (recorded_at);
CREATE INDEX IF NOT EXISTS idx_results_check_time  ON results (check_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_asset_time  ON results (asset_id, recorded_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
  id        TEXT PRIMARY KEY,
  check_id  TEXT NOT NULL REFERENCES checks(id) ON DELETE CASCADE,
  asset_id  TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
  is_open   BOOLEAN NOT NULL DEFAULT TRUE,
  severity  TEXT NOT NULL,
  title     TEXT NOT NULL DEFAULT '',
  details   TEXT NOT NULL DEFAULT '',
  opened_at TIMESTAMPTZ NOT NULL,
  closed_at TIMESTAMPTZ NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_open_time ON alerts (is_open, opened_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS uq_alerts_one_open ON alerts (check_id) WHERE is_open;
`

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}
