package sqlite

import (
	"context"
	"database/sql"
	"errors"
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
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO results (check_id, asset_id, ok, status_code, message, latency_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(r.CheckID), string(r.AssetID), r.OK, r.StatusCode, r.Message, r.LatencyMS, nanos(r.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("result id: %w", err)
	}
	return nil
}

func (s *Store) ResultsSince(ctx context.Context, since time.Time, assetID domain.AssetID) ([]*domain.CheckResult, error) {
	q := `SELECT ` + resultCols + ` FROM results WHERE recorded_at >= ?`
	args := []any{nanos(since)}
	if assetID != "" {
		q += ` AND asset_id = ?`
		args = append(args, string(assetID))
	}
	return s.listResults(ctx, q+` ORDER BY recorded_at, id`, args...)
}

func (s *Store) RecentResults(ctx context.Context, assetID domain.AssetID, limit int) ([]*domain.CheckResult, error) {
	return s.listResults(ctx,
		`SELECT `+resultCols+` FROM results WHERE asset_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		string(assetID), limit)
}

func (s *Store) listResults(ctx context.Context, q string, args ...any) ([]*domain.CheckResult, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []*domain.CheckResult
	for rows.Next() {
		var (
			r                domain.CheckResult
			checkID, assetID string
			recorded         int64
		)
		if err := rows.Scan(&r.ID, &checkID, &assetID, &r.OK, &r.StatusCode, &r.Message, &r.LatencyMS, &recorded); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.CheckID, r.AssetID, r.RecordedAt = domain.CheckID(checkID), domain.AssetID(assetID), fromNanos(recorded)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ---- AlertStore ----

const alertCols = `id, check_id, asset_id, is_open, severity, title, details, opened_at, closed_at`

func scanAlert(row scanner) (*domain.Alert, error) {
	var (
		a                          domain.Alert
		checkID, assetID, severity string
		opened                     int64
		closed                     sql.NullInt64
	)
	if err := row.Scan(&a.ID, &checkID, &assetID, &a.IsOpen, &severity, &a.Title, &a.Details, &opened, &closed); err != nil {
		return nil, err
	}
	a.CheckID, a.AssetID, a.Severity = domain.CheckID(checkID), domain.AssetID(assetID), domain.Severity(severity)
	a.OpenedAt, a.ClosedAt = fromNanos(opened), nullTime(closed)
	return &a, nil
}

// UpsertOpenAlert runs select-then-write in one transaction. The single
// connection serializes writers and uq_alerts_one_open backs it up.
func (s *Store) UpsertOpenAlert(ctx context.Context, a *domain.Alert) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	cur, err := scanAlert(tx.QueryRowContext(ctx,
		`SELECT `+alertCols+` FROM alerts WHERE check_id = ? AND is_open = 1`, string(a.CheckID)))
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE alerts SET severity = ?, title = ?, details = ? WHERE id = ?`,
			string(a.Severity), a.Title, a.Details, cur.ID); err != nil {
			return false, fmt.Errorf("update alert: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("commit: %w", err)
		}
		cur.Severity, cur.Title, cur.Details = a.Severity, a.Title, a.Details
		*a = *cur
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("find open alert: %w", err)
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.OpenedAt.IsZero() {
		a.OpenedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO alerts (id, check_id, asset_id, is_open, severity, title, details, opened_at)
		 VALUES (?, ?, ?, 1, ?, ?, ?, ?)`,
		a.ID, string(a.CheckID), string(a.AssetID), string(a.Severity), a.Title, a.Details, nanos(a.OpenedAt)); err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	a.IsOpen, a.ClosedAt = true, nil
	return true, nil
}

func (s *Store) CloseOpenAlerts(ctx context.Context, checkID domain.CheckID, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET is_open = 0, closed_at = ? WHERE check_id = ? AND is_open = 1`,
		nanos(at), string(checkID))
	if err != nil {
		return 0, fmt.Errorf("close alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) ListAlerts(ctx context.Context, f repo.AlertFilter) ([]*domain.Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.OpenOnly {
		where = append(where, "is_open = 1")
	}
	if f.AssetID != "" {
		where = append(where, "asset_id = ?")
		args = append(args, string(f.AssetID))
	}
	q := `SELECT ` + alertCols + ` FROM alerts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY opened_at DESC, id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
