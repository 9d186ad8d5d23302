package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/repo"
)

// ---- AssetStore ----

func (s *Store) CreateAsset(ctx context.Context, a *domain.Asset) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(assetNamesBucket)
		if names.Get([]byte(a.Name)) != nil {
			return fmt.Errorf("insert asset %q: name already exists", a.Name)
		}
		if a.ID == "" {
			a.ID = domain.AssetID(uuid.NewString())
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		if err := names.Put([]byte(a.Name), []byte(a.ID)); err != nil {
			return err
		}
		return put(tx.Bucket(assetsBucket), []byte(a.ID), a)
	})
}

func (s *Store) UpdateAsset(ctx context.Context, a *domain.Asset) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(assetsBucket)
		cur, err := get[domain.Asset](b, []byte(a.ID))
		if err != nil {
			return err
		}
		cur.Type, cur.Address, cur.Description, cur.Tags, cur.Enabled = a.Type, a.Address, a.Description, a.Tags, a.Enabled
		return put(b, []byte(a.ID), cur)
	})
}

func (s *Store) GetAsset(ctx context.Context, id domain.AssetID) (*domain.Asset, error) {
	var out *domain.Asset
	err := s.db.View(func(tx *bbolt.Tx) (err error) {
		out, err = get[domain.Asset](tx.Bucket(assetsBucket), []byte(id))
		return err
	})
	return out, err
}

func (s *Store) AssetByName(ctx context.Context, name string) (*domain.Asset, error) {
	var out *domain.Asset
	err := s.db.View(func(tx *bbolt.Tx) (err error) {
		id := tx.Bucket(assetNamesBucket).Get([]byte(name))
		if id == nil {
			return repo.ErrNotFound
		}
		out, err = get[domain.Asset](tx.Bucket(assetsBucket), id)
		return err
	})
	return out, err
}

func (s *Store) ListAssets(ctx context.Context) ([]*domain.Asset, error) {
	var out []*domain.Asset
	err := s.db.View(func(tx *bbolt.Tx) (err error) {
		out, err = allAssets(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func allAssets(tx *bbolt.Tx) ([]*domain.Asset, error) {
	var out []*domain.Asset
	err := tx.Bucket(assetsBucket).ForEach(func(k, v []byte) error {
		var a domain.Asset
		if err := json.Unmarshal(v, &a); err != nil {
			return fmt.Errorf("decode asset %s: %w", k, err)
		}
		out = append(out, &a)
		return nil
	})
	return out, err
}

// ---- CheckStore ----

func (s *Store) CreateCheck(ctx context.Context, c *domain.Check) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(assetsBucket).Get([]byte(c.AssetID)) == nil {
			return fmt.Errorf("insert check: asset %s: %w", c.AssetID, repo.ErrNotFound)
		}
		names := tx.Bucket(checkNamesBucket)
		nk := checkNameKey(string(c.AssetID), c.Name)
		if names.Get(nk) != nil {
			return fmt.Errorf("insert check %q: name already exists on asset", c.Name)
		}
		if c.ID == "" {
			c.ID = domain.CheckID(uuid.NewString())
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		if err := names.Put(nk, []byte(c.ID)); err != nil {
			return err
		}
		return put(tx.Bucket(checksBucket), []byte(c.ID), c)
	})
}

func (s *Store) UpdateCheck(ctx context.Context, c *domain.Check) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(checksBucket)
		cur, err := get[domain.Check](b, []byte(c.ID))
		if err != nil {
			return err
		}
		if cur.Name != c.Name {
			names := tx.Bucket(checkNamesBucket)
			nk := checkNameKey(string(cur.AssetID), c.Name)
			if names.Get(nk) != nil {
				return fmt.Errorf("update check %q: name already exists on asset", c.Name)
			}
			if err := names.Delete(checkNameKey(string(cur.AssetID), cur.Name)); err != nil {
				return err
			}
			if err := names.Put(nk, []byte(c.ID)); err != nil {
				return err
			}
		}
		next := *c
		next.AssetID, next.LastRunAt, next.CreatedAt = cur.AssetID, cur.LastRunAt, cur.CreatedAt
		return put(b, []byte(c.ID), &next)
	})
}

func (s *Store) GetCheck(ctx context.Context, id domain.CheckID) (*domain.Check, error) {
	var out *domain.Check
	err := s.db.View(func(tx *bbolt.Tx) (err error) {
		out, err = get[domain.Check](tx.Bucket(checksBucket), []byte(id))
		return err
	})
	return out, err
}

func (s *Store) CheckByName(ctx context.Context, assetID domain.AssetID, name string) (*domain.Check, error) {
	var out *domain.Check
	err := s.db.View(func(tx *bbolt.Tx) (err error) {
		id := tx.Bucket(checkNamesBucket).Get(checkNameKey(string(assetID), name))
		if id == nil {
			return repo.ErrNotFound
		}
		out, err = get[domain.Check](tx.Bucket(checksBucket), id)
		return err
	})
	return out, err
}

func (s *Store) ListChecks(ctx context.Context) ([]*domain.Check, error) {
	return s.listChecks(func(*domain.Check, *domain.Asset) bool { return true })
}

func (s *Store) ListChecksByAsset(ctx context.Context, assetID domain.AssetID) ([]*domain.Check, error) {
	return s.listChecks(func(c *domain.Check, _ *domain.Asset) bool { return c.AssetID == assetID })
}

func (s *Store) ListSchedulable(ctx context.Context) ([]*domain.Check, error) {
	return s.listChecks(func(c *domain.Check, a *domain.Asset) bool { return c.Enabled && a != nil && a.Enabled })
}

// listChecks returns the checks keep accepts, ordered by asset name then check name.
func (s *Store) listChecks(keep func(*domain.Check, *domain.Asset) bool) ([]*domain.Check, error) {
	var (
		out    []*domain.Check
		assets = map[domain.AssetID]*domain.Asset{}
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		all, err := allAssets(tx)
		if err != nil {
			return err
		}
		for _, a := range all {
			assets[a.ID] = a
		}
		return tx.Bucket(checksBucket).ForEach(func(k, v []byte) error {
			var c domain.Check
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decode check %s: %w", k, err)
			}
			if keep(&c, assets[c.AssetID]) {
				out = append(out, &c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	assetName := func(c *domain.Check) string {
		if a := assets[c.AssetID]; a != nil {
			return a.Name
		}
		return ""
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := assetName(out[i]), assetName(out[j])
		if ai != aj {
			return ai < aj
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) SetLastRun(ctx context.Context, id domain.CheckID, at time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(checksBucket)
		c, err := get[domain.Check](b, []byte(id))
		if err != nil {
			return err
		}
		ts := at.UTC()
		c.LastRunAt = &ts
		return put(b, []byte(id), c)
	})
}

// ---- ResultStore ----

func (s *Store) AppendResult(ctx context.Context, r *domain.CheckResult) error {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(resultsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		r.ID = int64(seq)
		return put(b, resultKey(r.RecordedAt, seq), r)
	})
}

func (s *Store) ResultsSince(ctx context.Context, since time.Time, assetID domain.AssetID) ([]*domain.CheckResult, error) {
	var out []*domain.CheckResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(resultsBucket).Cursor()
		for k, v := c.Seek(timePrefix(since)); k != nil; k, v = c.Next() {
			var r domain.CheckResult
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			if assetID == "" || r.AssetID == assetID {
				out = append(out, &r)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) RecentResults(ctx context.Context, assetID domain.AssetID, limit int) ([]*domain.CheckResult, error) {
	var out []*domain.CheckResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(resultsBucket).Cursor()
		for k, v := c.Last(); k != nil && (limit <= 0 || len(out) < limit); k, v = c.Prev() {
			var r domain.CheckResult
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			if r.AssetID == assetID {
				out = append(out, &r)
			}
		}
		return nil
	})
	return out, err
}

// ---- AlertStore ----

// UpsertOpenAlert relies on bbolt running one write transaction at a time;
// open_alerts maps a check to its single open alert.
func (s *Store) UpsertOpenAlert(ctx context.Context, a *domain.Alert) (bool, error) {
	created := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		alerts, open := tx.Bucket(alertsBucket), tx.Bucket(openAlertsBucket)
		if id := bytes.Clone(open.Get([]byte(a.CheckID))); id != nil {
			cur, err := get[domain.Alert](alerts, id)
			if err != nil {
				return err
			}
			cur.Severity, cur.Title, cur.Details = a.Severity, a.Title, a.Details
			if err := put(alerts, id, cur); err != nil {
				return err
			}
			*a = *cur
			return nil
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.OpenedAt.IsZero() {
			a.OpenedAt = time.Now().UTC()
		}
		a.IsOpen, a.ClosedAt = true, nil
		if err := open.Put([]byte(a.CheckID), []byte(a.ID)); err != nil {
			return err
		}
		created = true
		return put(alerts, []byte(a.ID), a)
	})
	if err != nil {
		return false, fmt.Errorf("upsert alert: %w", err)
	}
	return created, nil
}

func (s *Store) CloseOpenAlerts(ctx context.Context, checkID domain.CheckID, at time.Time) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		alerts, open := tx.Bucket(alertsBucket), tx.Bucket(openAlertsBucket)
		id := open.Get([]byte(checkID))
		if id == nil {
			return nil
		}
		id = bytes.Clone(id)
		cur, err := get[domain.Alert](alerts, id)
		if err != nil {
			return err
		}
		ts := at.UTC()
		cur.IsOpen, cur.ClosedAt = false, &ts
		if err := put(alerts, id, cur); err != nil {
			return err
		}
		n = 1
		return open.Delete([]byte(checkID))
	})
	if err != nil {
		return 0, fmt.Errorf("close alerts: %w", err)
	}
	return n, nil
}

func (s *Store) ListAlerts(ctx context.Context, f repo.AlertFilter) ([]*domain.Alert, error) {
	var out []*domain.Alert
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(alertsBucket).ForEach(func(k, v []byte) error {
			var a domain.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("decode alert %s: %w", k, err)
			}
			if (f.OpenOnly && !a.IsOpen) || (f.AssetID != "" && a.AssetID != f.AssetID) {
				return nil
			}
			out = append(out, &a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.After(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
