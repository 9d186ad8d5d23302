package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/repo"
)

// ---- AssetStore ----

const assetCols = `id, name, type, address, description, tags, enabled, created_at`

func scanAsset(row scanner) (*domain.Asset, error) {
	var (
		a       domain.Asset
		id, typ string
		created int64
	)
	if err := row.Scan(&id, &a.Name, &typ, &a.Address, &a.Description, &a.Tags, &a.Enabled, &created); err != nil {
		return nil, err
	}
	a.ID, a.Type, a.CreatedAt = domain.AssetID(id), domain.AssetType(typ), fromNanos(created)
	return &a, nil
}

func (s *Store) CreateAsset(ctx context.Context, a *domain.Asset) error {
	if a.ID == "" {
		a.ID = domain.AssetID(uuid.NewString())
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (`+assetCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), a.Name, string(a.Type), a.Address, a.Description, a.Tags, a.Enabled, nanos(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (s *Store) UpdateAsset(ctx context.Context, a *domain.Asset) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET type = ?, address = ?, description = ?, tags = ?, enabled = ? WHERE id = ?`,
		string(a.Type), a.Address, a.Description, a.Tags, a.Enabled, string(a.ID),
	)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	return mustAffect(res)
}

func (s *Store) GetAsset(ctx context.Context, id domain.AssetID) (*domain.Asset, error) {
	return s.oneAsset(ctx, `SELECT `+assetCols+` FROM assets WHERE id = ?`, string(id))
}

func (s *Store) AssetByName(ctx context.Context, name string) (*domain.Asset, error) {
	return s.oneAsset(ctx, `SELECT `+assetCols+` FROM assets WHERE name = ?`, name)
}

func (s *Store) oneAsset(ctx context.Context, q string, arg any) (*domain.Asset, error) {
	a, err := scanAsset(s.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

func (s *Store) ListAssets(ctx context.Context) ([]*domain.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetCols+` FROM assets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []*domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ---- CheckStore ----

const checkCols = `c.id, c.asset_id, c.name, c.kind, c.target, c.port, c.interval_seconds, c.timeout_seconds,
       c.expected_status, c.ssl_days_threshold, c.enabled, c.last_run_at, c.created_at`

func scanCheck(row scanner) (*domain.Check, error) {
	var (
		c                 domain.Check
		id, assetID, kind string
		lastRun           sql.NullInt64
		created           int64
	)
	err := row.Scan(&id, &assetID, &c.Name, &kind, &c.Target, &c.Port, &c.IntervalSeconds, &c.TimeoutSeconds,
		&c.ExpectedStatus, &c.SSLDaysThreshold, &c.Enabled, &lastRun, &created)
	if err != nil {
		return nil, err
	}
	c.ID, c.AssetID, c.Kind = domain.CheckID(id), domain.AssetID(assetID), domain.Kind(kind)
	c.LastRunAt, c.CreatedAt = nullTime(lastRun), fromNanos(created)
	return &c, nil
}

func (s *Store) CreateCheck(ctx context.Context, c *domain.Check) error {
	if c.ID == "" {
		c.ID = domain.CheckID(uuid.NewString())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checks
		   (id, asset_id, name, kind, target, port, interval_seconds, timeout_seconds,
		    expected_status, ssl_days_threshold, enabled, last_run_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), string(c.AssetID), c.Name, string(c.Kind), c.Target, c.Port, c.IntervalSeconds, c.TimeoutSeconds,
		c.ExpectedStatus, c.SSLDaysThreshold, c.Enabled, nullNanos(c.LastRunAt), nanos(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func (s *Store) UpdateCheck(ctx context.Context, c *domain.Check) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE checks
		    SET name = ?, kind = ?, target = ?, port = ?, interval_seconds = ?, timeout_seconds = ?,
		        expected_status = ?, ssl_days_threshold = ?, enabled = ?
		  WHERE id = ?`,
		c.Name, string(c.Kind), c.Target, c.Port, c.IntervalSeconds, c.TimeoutSeconds,
		c.ExpectedStatus, c.SSLDaysThreshold, c.Enabled, string(c.ID),
	)
	if err != nil {
		return fmt.Errorf("update check: %w", err)
	}
	return mustAffect(res)
}

func (s *Store) GetCheck(ctx context.Context, id domain.CheckID) (*domain.Check, error) {
	return s.oneCheck(ctx, `SELECT `+checkCols+` FROM checks c WHERE c.id = ?`, string(id))
}

func (s *Store) CheckByName(ctx context.Context, assetID domain.AssetID, name string) (*domain.Check, error) {
	return s.oneCheck(ctx, `SELECT `+checkCols+` FROM checks c WHERE c.asset_id = ? AND c.name = ?`, string(assetID), name)
}

func (s *Store) oneCheck(ctx context.Context, q string, args ...any) (*domain.Check, error) {
	c, err := scanCheck(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get check: %w", err)
	}
	return c, nil
}

func (s *Store) ListChecks(ctx context.Context) ([]*domain.Check, error) {
	return s.listChecks(ctx, `
SELECT `+checkCols+`
  FROM checks c
  JOIN assets a ON a.id = c.asset_id
 ORDER BY a.name, c.name`)
}

func (s *Store) ListChecksByAsset(ctx context.Context, assetID domain.AssetID) ([]*domain.Check, error) {
	return s.listChecks(ctx, `SELECT `+checkCols+` FROM checks c WHERE c.asset_id = ? ORDER BY c.name`, string(assetID))
}

func (s *Store) ListSchedulable(ctx context.Context) ([]*domain.Check, error) {
	return s.listChecks(ctx, `
SELECT `+checkCols+`
  FROM checks c
  JOIN assets a ON a.id = c.asset_id
 WHERE c.enabled = 1 AND a.enabled = 1
 ORDER BY a.name, c.name`)
}

func (s *Store) listChecks(ctx context.Context, q string, args ...any) ([]*domain.Check, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	var out []*domain.Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SetLastRun(ctx context.Context, id domain.CheckID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE checks SET last_run_at = ? WHERE id = ?`, nanos(at), string(id))
	if err != nil {
		return fmt.Errorf("set last run: %w", err)
	}
	return mustAffect(res)
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}
