package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/repo"
)

// ---- ResultStore ----

const resultCols = `id, check_id, asset_id, ok, status_code, message, latency_ms, recorded_at`

func (s *Store) AppendResult(ctx context.Context, r *domain.CheckResult) error {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO results
		   (check_id, asset_id, ok, status_code, message, latency_ms, recorded_at)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		string(r.CheckID), string(r.AssetID), r.OK, r.StatusCode, r.Message, r.LatencyMS, r.RecordedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) ResultsSince(ctx context.Context, since time.Time, assetID domain.AssetID) ([]*domain.CheckResult, error) {
	q := `SELECT ` + resultCols + ` FROM results WHERE recorded_at >= $1`
	args := []any{since}
	if assetID != "" {
		q += ` AND asset_id = $2`
		args = append(args, string(assetID))
	}
	return s.listResults(ctx, q+` ORDER BY recorded_at, id`, args...)
}

func (s *Store) RecentResults(ctx context.Context, assetID domain.AssetID, limit int) ([]*domain.CheckResult, error) {
	return s.listResults(ctx,
		`SELECT `+resultCols+` FROM results WHERE asset_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2`,
		string(assetID), limit)
}

func (s *Store) listResults(ctx context.Context, q string, args ...any) ([]*domain.CheckResult, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []*domain.CheckResult
	for rows.Next() {
		var (
			r                domain.CheckResult
			checkID, assetID string
		)
		if err := rows.Scan(&r.ID, &checkID, &assetID, &r.OK, &r.StatusCode, &r.Message, &r.LatencyMS, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.CheckID, r.AssetID = domain.CheckID(checkID), domain.AssetID(assetID)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ---- AlertStore ----

const alertCols = `id, check_id, asset_id, is_open, severity, title, details, opened_at, closed_at`

// UpsertOpenAlert relies on uq_alerts_one_open; xmax is zero only for a
// freshly inserted row.
func (s *Store) UpsertOpenAlert(ctx context.Context, a *domain.Alert) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.OpenedAt.IsZero() {
		a.OpenedAt = time.Now().UTC()
	}
	var (
		id       string
		openedAt time.Time
		inserted bool
	)
	err := s.pool.QueryRow(ctx, `
INSERT INTO alerts (id, check_id, asset_id, is_open, severity, title, details, opened_at)
VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7)
ON CONFLICT (check_id) WHERE is_open
DO UPDATE SET severity = EXCLUDED.severity, title = EXCLUDED.title, details = EXCLUDED.details
RETURNING id, opened_at, (xmax = 0) AS inserted`,
		a.ID, string(a.CheckID), string(a.AssetID), string(a.Severity), a.Title, a.Details, a.OpenedAt,
	).Scan(&id, &openedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert alert: %w", err)
	}
	a.ID, a.OpenedAt, a.IsOpen, a.ClosedAt = id, openedAt, true, nil
	return inserted, nil
}

func (s *Store) CloseOpenAlerts(ctx context.Context, checkID domain.CheckID, at time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET is_open = FALSE, closed_at = $2 WHERE check_id = $1 AND is_open`,
		string(checkID), at)
	if err != nil {
		return 0, fmt.Errorf("close alerts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ListAlerts(ctx context.Context, f repo.AlertFilter) ([]*domain.Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.OpenOnly {
		where = append(where, "is_open")
	}
	if f.AssetID != "" {
		args = append(args, string(f.AssetID))
		where = append(where, fmt.Sprintf("asset_id = $%d", len(args)))
	}
	q := `SELECT ` + alertCols + ` FROM alerts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY opened_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		var (
			a                          domain.Alert
			checkID, assetID, severity string
		)
		if err := rows.Scan(&a.ID, &checkID, &assetID, &a.IsOpen, &severity, &a.Title, &a.Details, &a.OpenedAt, &a.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.CheckID, a.AssetID, a.Severity = domain.CheckID(checkID), domain.AssetID(assetID), domain.Severity(severity)
		out = append(out, &a)
	}
	return out, rows.Err()
}
