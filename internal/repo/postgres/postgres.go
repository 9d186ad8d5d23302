package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/repo"
)

// ---- AssetStore ----

const assetCols = `id, name, type, address, description, tags, enabled, created_at`

func scanAsset(row scanner) (*domain.Asset, error) {
	var (
		a       domain.Asset
		id, typ string
	)
	if err := row.Scan(&id, &a.Name, &typ, &a.Address, &a.Description, &a.Tags, &a.Enabled, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ID, a.Type = domain.AssetID(id), domain.AssetType(typ)
	return &a, nil
}

func (s *Store) CreateAsset(ctx context.Context, a *domain.Asset) error {
	if a.ID == "" {
		a.ID = domain.AssetID(uuid.NewString())
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assets (`+assetCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(a.ID), a.Name, string(a.Type), a.Address, a.Description, a.Tags, a.Enabled, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (s *Store) UpdateAsset(ctx context.Context, a *domain.Asset) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE assets SET type = $2, address = $3, description = $4, tags = $5, enabled = $6 WHERE id = $1`,
		string(a.ID), string(a.Type), a.Address, a.Description, a.Tags, a.Enabled,
	)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) GetAsset(ctx context.Context, id domain.AssetID) (*domain.Asset, error) {
	return s.oneAsset(ctx, `SELECT `+assetCols+` FROM assets WHERE id = $1`, string(id))
}

func (s *Store) AssetByName(ctx context.Context, name string) (*domain.Asset, error) {
	return s.oneAsset(ctx, `SELECT `+assetCols+` FROM assets WHERE name = $1`, name)
}

func (s *Store) oneAsset(ctx context.Context, q string, arg any) (*domain.Asset, error) {
	a, err := scanAsset(s.pool.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

func (s *Store) ListAssets(ctx context.Context) ([]*domain.Asset, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+assetCols+` FROM assets ORDER BY name`)
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
	)
	err := row.Scan(&id, &assetID, &c.Name, &kind, &c.Target, &c.Port, &c.IntervalSeconds, &c.TimeoutSeconds,
		&c.ExpectedStatus, &c.SSLDaysThreshold, &c.Enabled, &c.LastRunAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.ID, c.AssetID, c.Kind = domain.CheckID(id), domain.AssetID(assetID), domain.Kind(kind)
	return &c, nil
}

func (s *Store) CreateCheck(ctx context.Context, c *domain.Check) error {
	if c.ID == "" {
		c.ID = domain.CheckID(uuid.NewString())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checks
		   (id, asset_id, name, kind, target, port, interval_seconds, timeout_seconds,
		    expected_status, ssl_days_threshold, enabled, last_run_at, created_at)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		string(c.ID), string(c.AssetID), c.Name, string(c.Kind), c.Target, c.Port, c.IntervalSeconds, c.TimeoutSeconds,
		c.ExpectedStatus, c.SSLDaysThreshold, c.Enabled, c.LastRunAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func (s *Store) UpdateCheck(ctx context.Context, c *domain.Check) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE checks
		    SET name = $2, kind = $3, target = $4, port = $5, interval_seconds = $6, timeout_seconds = $7,
		        expected_status = $8, ssl_days_threshold = $9, enabled = $10
		  WHERE id = $1`,
		string(c.ID), c.Name, string(c.Kind), c.Target, c.Port, c.IntervalSeconds, c.TimeoutSeconds,
		c.ExpectedStatus, c.SSLDaysThreshold, c.Enabled,
	)
	if err != nil {
		return fmt.Errorf("update check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) GetCheck(ctx context.Context, id domain.CheckID) (*domain.Check, error) {
	return s.oneCheck(ctx, `SELECT `+checkCols+` FROM checks c WHERE c.id = $1`, string(id))
}

func (s *Store) CheckByName(ctx context.Context, assetID domain.AssetID, name string) (*domain.Check, error) {
	return s.oneCheck(ctx, `SELECT `+checkCols+` FROM checks c WHERE c.asset_id = $1 AND c.name = $2`, string(assetID), name)
}

func (s *Store) oneCheck(ctx context.Context, q string, args ...any) (*domain.Check, error) {
	c, err := scanCheck(s.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
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
	return s.listChecks(ctx, `SELECT `+checkCols+` FROM checks c WHERE c.asset_id = $1 ORDER BY c.name`, string(assetID))
}

func (s *Store) ListSchedulable(ctx context.Context) ([]*domain.Check, error) {
	return s.listChecks(ctx, `
SELECT `+checkCols+`
  FROM checks c
  JOIN assets a ON a.id = c.asset_id
 WHERE c.enabled AND a.enabled
 ORDER BY a.name, c.name`)
}

func (s *Store) listChecks(ctx context.Context, q string, args ...any) ([]*domain.Check, error) {
	rows, err := s.pool.Query(ctx, q, args...)
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
	tag, err := s.pool.Exec(ctx, `UPDATE checks SET last_run_at = $2 WHERE id = $1`, string(id), at)
	if err != nil {
		return fmt.Errorf("set last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
