package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store keeps everything in process memory. Records are copied on the way in
// and out so callers never share pointers with the store.
type Store struct {
	mu      sync.RWMutex
	assets  map[domain.AssetID]*domain.Asset
	checks  map[domain.CheckID]*domain.Check
	results []*domain.CheckResult
	alerts  []*domain.Alert
	nextRes int64
}

func New() *Store {
	return &Store{
		assets:  make(map[domain.AssetID]*domain.Asset),
		checks:  make(map[domain.CheckID]*domain.Check),
		results: make([]*domain.CheckResult, 0, 128),
	}
}

func (m *Store) Close() error { return nil }

// ---- AssetStore ----

func (m *Store) CreateAsset(ctx context.Context, a *domain.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.assets {
		if x.Name == a.Name {
			return fmt.Errorf("insert asset %q: name already exists", a.Name)
		}
	}
	if a.ID == "" {
		a.ID = domain.AssetID(uuid.NewString())
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	m.assets[a.ID] = &cp
	return nil
}

func (m *Store) UpdateAsset(ctx context.Context, a *domain.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.assets[a.ID]
	if !ok {
		return repo.ErrNotFound
	}
	cur.Type, cur.Address, cur.Description, cur.Tags, cur.Enabled = a.Type, a.Address, a.Description, a.Tags, a.Enabled
	return nil
}

func (m *Store) GetAsset(ctx context.Context, id domain.AssetID) (*domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Store) AssetByName(ctx context.Context, name string) (*domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.assets {
		if a.Name == name {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *Store) ListAssets(ctx context.Context) ([]*domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Asset, 0, len(m.assets))
	for _, a := range m.assets {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---- CheckStore ----

func (m *Store) CreateCheck(ctx context.Context, c *domain.Check) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[c.AssetID]; !ok {
		return fmt.Errorf("insert check %q: asset %s: %w", c.Name, c.AssetID, repo.ErrNotFound)
	}
	for _, x := range m.checks {
		if x.AssetID == c.AssetID && x.Name == c.Name {
			return fmt.Errorf("insert check %q: name already exists for asset", c.Name)
		}
	}
	if c.ID == "" {
		c.ID = domain.CheckID(uuid.NewString())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.checks[c.ID] = copyCheck(c)
	return nil
}

func (m *Store) UpdateCheck(ctx context.Context, c *domain.Check) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.checks[c.ID]
	if !ok {
		return repo.ErrNotFound
	}
	next := copyCheck(c)
	next.LastRunAt = cur.LastRunAt
	next.CreatedAt = cur.CreatedAt
	m.checks[c.ID] = next
	return nil
}

func (m *Store) GetCheck(ctx context.Context, id domain.CheckID) (*domain.Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checks[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return copyCheck(c), nil
}

func (m *Store) CheckByName(ctx context.Context, assetID domain.AssetID, name string) (*domain.Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.checks {
		if c.AssetID == assetID && c.Name == name {
			return copyCheck(c), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *Store) ListChecks(ctx context.Context) ([]*domain.Check, error) {
	return m.filterChecks(func(*domain.Check) bool { return true }), nil
}

func (m *Store) ListChecksByAsset(ctx context.Context, assetID domain.AssetID) ([]*domain.Check, error) {
	return m.filterChecks(func(c *domain.Check) bool { return c.AssetID == assetID }), nil
}

func (m *Store) ListSchedulable(ctx context.Context) ([]*domain.Check, error) {
	return m.filterChecks(func(c *domain.Check) bool {
		a := m.assets[c.AssetID]
		return c.Enabled && a != nil && a.Enabled
	}), nil
}

func (m *Store) filterChecks(keep func(*domain.Check) bool) []*domain.Check {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Check
	for _, c := range m.checks {
		if keep(c) {
			out = append(out, copyCheck(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := m.assets[out[i].AssetID], m.assets[out[j].AssetID]
		if ai != nil && aj != nil && ai.Name != aj.Name {
			return ai.Name < aj.Name
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (m *Store) SetLastRun(ctx context.Context, id domain.CheckID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checks[id]
	if !ok {
		return repo.ErrNotFound
	}
	ts := at
	c.LastRunAt = &ts
	return nil
}

func copyCheck(c *domain.Check) *domain.Check {
	cp := *c
	if c.Port != nil {
		p := *c.Port
		cp.Port = &p
	}
	if c.LastRunAt != nil {
		ts := *c.LastRunAt
		cp.LastRunAt = &ts
	}
	return &cp
}

// ---- ResultStore ----

func (m *Store) AppendResult(ctx context.Context, r *domain.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	m.nextRes++
	r.ID = m.nextRes
	cp := *r
	m.results = append(m.results, &cp)
	return nil
}

func (m *Store) ResultsSince(ctx context.Context, since time.Time, assetID domain.AssetID) ([]*domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.CheckResult
	for _, r := range m.results {
		if r.RecordedAt.Before(since) || (assetID != "" && r.AssetID != assetID) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

func (m *Store) RecentResults(ctx context.Context, assetID domain.AssetID, limit int) ([]*domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.CheckResult
	for _, r := range m.results {
		if r.AssetID == assetID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- AlertStore ----

func (m *Store) UpsertOpenAlert(ctx context.Context, a *domain.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.alerts {
		if cur.CheckID == a.CheckID && cur.IsOpen {
			cur.Severity, cur.Title, cur.Details = a.Severity, a.Title, a.Details
			*a = *cur
			return false, nil
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.OpenedAt.IsZero() {
		a.OpenedAt = time.Now().UTC()
	}
	a.IsOpen = true
	a.ClosedAt = nil
	cp := *a
	m.alerts = append(m.alerts, &cp)
	return true, nil
}

func (m *Store) CloseOpenAlerts(ctx context.Context, checkID domain.CheckID, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if a.CheckID == checkID && a.IsOpen {
			ts := at
			a.IsOpen = false
			a.ClosedAt = &ts
			n++
		}
	}
	return n, nil
}

func (m *Store) ListAlerts(ctx context.Context, f repo.AlertFilter) ([]*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Alert
	for _, a := range m.alerts {
		if (f.OpenOnly && !a.IsOpen) || (f.AssetID != "" && a.AssetID != f.AssetID) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
