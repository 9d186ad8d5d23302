package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/infrawatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store persists to a single SQLite file. Timestamps are stored as UTC unix
// nanoseconds so range scans compare integers.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	// foreign_keys is per connection, so it rides on the DSN.
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS assets (
  id          TEXT PRIMARY KEY,
  name        TEXT NOT NULL UNIQUE,
  type        TEXT NOT NULL DEFAULT 'other',
  address     TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  tags        TEXT NOT NULL DEFAULT '',
  enabled     INTEGER NOT NULL DEFAULT 1,
  created_at  INTEGER NOT NULL
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
  enabled            INTEGER NOT NULL DEFAULT 1,
  last_run_at        INTEGER NULL,
  created_at         INTEGER NOT NULL,
  UNIQUE (asset_id, name)
);

CREATE TABLE IF NOT EXISTS results (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  check_id    TEXT NOT NULL REFERENCES checks(id) ON DELETE CASCADE,
  asset_id    TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
  ok          INTEGER NOT NULL,
  status_code INTEGER NULL,
  message     TEXT NOT NULL DEFAULT '',
  latency_ms  REAL NULL,
  recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_recorded_at ON results (recorded_at);
CREATE INDEX IF NOT EXISTS idx_results_check_time  ON results (check_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_results_asset_time  ON results (asset_id, recorded_at);

CREATE TABLE IF NOT EXISTS alerts (
  id        TEXT PRIMARY KEY,
  check_id  TEXT NOT NULL REFERENCES checks(id) ON DELETE CASCADE,
  asset_id  TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
  is_open   INTEGER NOT NULL DEFAULT 1,
  severity  TEXT NOT NULL,
  title     TEXT NOT NULL DEFAULT '',
  details   TEXT NOT NULL DEFAULT '',
  opened_at INTEGER NOT NULL,
  closed_at INTEGER NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_open_time ON alerts (is_open, opened_at);
CREATE UNIQUE INDEX IF NOT EXISTS uq_alerts_one_open ON alerts (check_id) WHERE is_open = 1;
`

type scanner interface {
	Scan(dest ...any) error
}

func nanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return nanos(*t)
}
