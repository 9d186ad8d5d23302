// Package repotest holds the behaviour every repo.Store adapter must share.
package repotest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/repo"
)

// Run exercises open against the Store contract. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) repo.Store) {
	t.Run("assets", func(t *testing.T) { testAssets(t, open(t)) })
	t.Run("checks", func(t *testing.T) { testChecks(t, open(t)) })
	t.Run("results", func(t *testing.T) { testResults(t, open(t)) })
	t.Run("alerts", func(t *testing.T) { testAlerts(t, open(t)) })
	t.Run("concurrent_upsert", func(t *testing.T) { testConcurrentUpsert(t, open(t)) })
}

// Seed creates an enabled asset with one check and returns both.
func Seed(t *testing.T, s repo.Store, assetName string, c domain.Check) (*domain.Asset, *domain.Check) {
	t.Helper()
	ctx := context.Background()
	a := &domain.Asset{Name: assetName, Type: domain.AssetServer, Address: "10.0.0.1", Enabled: true}
	if err := s.CreateAsset(ctx, a); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	c.AssetID = a.ID
	if c.Name == "" {
		c.Name = "ping"
	}
	if c.Kind == "" {
		c.Kind = domain.KindPing
	}
	if err := s.CreateCheck(ctx, &c); err != nil {
		t.Fatalf("CreateCheck: %v", err)
	}
	return a, &c
}

func testAssets(t *testing.T, s repo.Store) {
	ctx := context.Background()
	b := &domain.Asset{Name: "b-host", Type: domain.AssetVM, Address: "b.local", Tags: "prod, web", Enabled: true}
	a := &domain.Asset{Name: "a-host", Type: domain.AssetServer, Address: "a.local", Enabled: false}
	for _, x := range []*domain.Asset{b, a} {
		if err := s.CreateAsset(ctx, x); err != nil {
			t.Fatalf("CreateAsset: %v", err)
		}
		if x.ID == "" || x.CreatedAt.IsZero() {
			t.Fatalf("expected ID and CreatedAt to be set: %+v", x)
		}
	}
	if err := s.CreateAsset(ctx, &domain.Asset{Name: "a-host"}); err == nil {
		t.Fatalf("duplicate asset name must be rejected")
	}

	got, err := s.GetAsset(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if got.Name != "b-host" || got.Tags != "prod, web" || !got.Enabled || got.Type != domain.AssetVM {
		t.Fatalf("unexpected asset %+v", got)
	}
	if _, err := s.GetAsset(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if byName, err := s.AssetByName(ctx, "a-host"); err != nil || byName.ID != a.ID || byName.Enabled {
		t.Fatalf("AssetByName: %+v err=%v", byName, err)
	}
	if _, err := s.AssetByName(ctx, "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	all, err := s.ListAssets(ctx)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(all) != 2 || all[0].Name != "a-host" || all[1].Name != "b-host" {
		t.Fatalf("assets should be sorted by name: %+v", all)
	}

	upd := *a
	upd.Address, upd.Tags, upd.Enabled, upd.Type = "a2.local", "lab", true, domain.AssetVM
	if err := s.UpdateAsset(ctx, &upd); err != nil {
		t.Fatalf("UpdateAsset: %v", err)
	}
	if got, _ := s.GetAsset(ctx, a.ID); got.Address != "a2.local" || got.Tags != "lab" || !got.Enabled || got.Type != domain.AssetVM || got.Name != "a-host" {
		t.Fatalf("asset not updated: %+v", got)
	}
	if err := s.UpdateAsset(ctx, &domain.Asset{ID: "missing"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func testChecks(t *testing.T, s repo.Store) {
	ctx := context.Background()
	port := 22
	a, c := Seed(t, s, "web-1", domain.Check{
		Name: "ssh", Kind: domain.KindTCPPort, Port: &port,
		IntervalSeconds: 120, TimeoutSeconds: 3, Enabled: true,
	})

	got, err := s.GetCheck(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCheck: %v", err)
	}
	if got.Kind != domain.KindTCPPort || got.Port == nil || *got.Port != 22 || got.IntervalSeconds != 120 || got.LastRunAt != nil {
		t.Fatalf("unexpected check %+v", got)
	}
	if err := s.CreateCheck(ctx, &domain.Check{AssetID: a.ID, Name: "ssh", Kind: domain.KindPing}); err == nil {
		t.Fatalf("duplicate (asset, name) must be rejected")
	}
	if _, err := s.GetCheck(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	at := time.Date(2025, 8, 18, 10, 0, 0, 0, time.UTC)
	if err := s.SetLastRun(ctx, c.ID, at); err != nil {
		t.Fatalf("SetLastRun: %v", err)
	}
	got.IntervalSeconds = 300
	got.Port = nil
	got.Enabled = false
	if err := s.UpdateCheck(ctx, got); err != nil {
		t.Fatalf("UpdateCheck: %v", err)
	}
	got, _ = s.GetCheck(ctx, c.ID)
	if got.IntervalSeconds != 300 || got.Port != nil || got.Enabled {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.LastRunAt == nil || !got.LastRunAt.Equal(at) {
		t.Fatalf("UpdateCheck must keep last run, got %v", got.LastRunAt)
	}
	if byName, err := s.CheckByName(ctx, a.ID, "ssh"); err != nil || byName.ID != c.ID {
		t.Fatalf("CheckByName: %+v err=%v", byName, err)
	}

	// schedulable = enabled check on enabled asset
	_, on := Seed(t, s, "web-2", domain.Check{Name: "ping", Enabled: true})
	off := &domain.Asset{Name: "web-3", Address: "x", Enabled: false}
	if err := s.CreateAsset(ctx, off); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if err := s.CreateCheck(ctx, &domain.Check{AssetID: off.ID, Name: "ping", Kind: domain.KindPing, Enabled: true}); err != nil {
		t.Fatalf("CreateCheck: %v", err)
	}

	due, err := s.ListSchedulable(ctx)
	if err != nil {
		t.Fatalf("ListSchedulable: %v", err)
	}
	if len(due) != 1 || due[0].ID != on.ID {
		t.Fatalf("want only %s schedulable, got %+v", on.ID, due)
	}
	all, _ := s.ListChecks(ctx)
	if len(all) != 3 {
		t.Fatalf("want 3 checks, got %d", len(all))
	}
	byAsset, _ := s.ListChecksByAsset(ctx, a.ID)
	if len(byAsset) != 1 || byAsset[0].ID != c.ID {
		t.Fatalf("ListChecksByAsset: %+v", byAsset)
	}
}

func f64(v float64) *float64 { return &v }

func testResults(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a1, c1 := Seed(t, s, "r-1", domain.Check{Enabled: true})
	a2, c2 := Seed(t, s, "r-2", domain.Check{Enabled: true})
	base := time.Date(2025, 8, 18, 10, 0, 0, 0, time.UTC)

	add := func(c *domain.Check, a *domain.Asset, at time.Time, ok bool, lat *float64) {
		code := 200
		r := &domain.CheckResult{CheckID: c.ID, AssetID: a.ID, OK: ok, Message: "m", LatencyMS: lat, StatusCode: &code, RecordedAt: at}
		if err := s.AppendResult(ctx, r); err != nil {
			t.Fatalf("AppendResult: %v", err)
		}
	}
	add(c1, a1, base.Add(2*time.Minute), true, f64(80))
	add(c1, a1, base.Add(-time.Hour), false, nil)
	add(c2, a2, base.Add(time.Minute), false, f64(120))
	add(c1, a1, base, true, nil)

	all, err := s.ResultsSince(ctx, base, "")
	if err != nil {
		t.Fatalf("ResultsSince: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("want 3 results since base, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].RecordedAt.Before(all[i-1].RecordedAt) {
			t.Fatalf("results must be oldest first")
		}
	}
	if all[0].LatencyMS != nil || all[1].LatencyMS == nil || *all[1].LatencyMS != 120 {
		t.Fatalf("latency not preserved: %+v %+v", all[0], all[1])
	}

	mine, _ := s.ResultsSince(ctx, base.Add(-2*time.Hour), a1.ID)
	if len(mine) != 3 {
		t.Fatalf("want 3 results for asset, got %d", len(mine))
	}
	recent, _ := s.RecentResults(ctx, a1.ID, 2)
	if len(recent) != 2 || !recent[0].RecordedAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("RecentResults should be newest first: %+v", recent)
	}
	if recent[0].ID == 0 || recent[0].StatusCode == nil || *recent[0].StatusCode != 200 {
		t.Fatalf("result fields not stored: %+v", recent[0])
	}
}

func testAlerts(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a, c := Seed(t, s, "al-1", domain.Check{Enabled: true})
	t0 := time.Date(2025, 8, 18, 10, 0, 0, 0, time.UTC)

	first := &domain.Alert{CheckID: c.ID, AssetID: a.ID, Severity: domain.SeverityCritical, Title: "t1", Details: "d1", OpenedAt: t0}
	created, err := s.UpsertOpenAlert(ctx, first)
	if err != nil || !created {
		t.Fatalf("first upsert should create: created=%v err=%v", created, err)
	}
	second := &domain.Alert{CheckID: c.ID, AssetID: a.ID, Severity: domain.SeverityWarning, Title: "t2", Details: "d2", OpenedAt: t0.Add(time.Minute)}
	created, err = s.UpsertOpenAlert(ctx, second)
	if err != nil || created {
		t.Fatalf("second upsert should update: created=%v err=%v", created, err)
	}

	open, _ := s.ListAlerts(ctx, repo.AlertFilter{OpenOnly: true})
	if len(open) != 1 {
		t.Fatalf("want exactly one open alert, got %d", len(open))
	}
	if open[0].Title != "t2" || open[0].Details != "d2" || open[0].Severity != domain.SeverityWarning {
		t.Fatalf("open alert not updated in place: %+v", open[0])
	}
	if !open[0].OpenedAt.Equal(t0) {
		t.Fatalf("update must keep opened_at, got %v", open[0].OpenedAt)
	}

	closedAt := t0.Add(time.Hour)
	n, err := s.CloseOpenAlerts(ctx, c.ID, closedAt)
	if err != nil || n != 1 {
		t.Fatalf("close: n=%d err=%v", n, err)
	}
	if n, _ := s.CloseOpenAlerts(ctx, c.ID, closedAt); n != 0 {
		t.Fatalf("second close must be a no-op, closed %d", n)
	}
	all, _ := s.ListAlerts(ctx, repo.AlertFilter{AssetID: a.ID})
	if len(all) != 1 || all[0].IsOpen || all[0].ClosedAt == nil || !all[0].ClosedAt.Equal(closedAt) {
		t.Fatalf("alert should be closed: %+v", all)
	}

	// a new failure after resolution opens a fresh alert
	created, _ = s.UpsertOpenAlert(ctx, &domain.Alert{CheckID: c.ID, AssetID: a.ID, Severity: domain.SeverityCritical, Title: "t3", OpenedAt: t0.Add(2 * time.Hour)})
	if !created {
		t.Fatalf("alert after resolution should be new")
	}
	all, _ = s.ListAlerts(ctx, repo.AlertFilter{Limit: 1})
	if len(all) != 1 || all[0].Title != "t3" {
		t.Fatalf("ListAlerts should be newest first with limit: %+v", all)
	}
}

func testConcurrentUpsert(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a, c := Seed(t, s, "race", domain.Check{Enabled: true})

	var wg sync.WaitGroup
	var mu sync.Mutex
	creates := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.UpsertOpenAlert(ctx, &domain.Alert{CheckID: c.ID, AssetID: a.ID, Severity: domain.SeverityCritical, Title: "x", OpenedAt: time.Now().UTC()})
			if err != nil {
				t.Errorf("upsert: %v", err)
				return
			}
			if ok {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	open, _ := s.ListAlerts(ctx, repo.AlertFilter{OpenOnly: true})
	if creates != 1 || len(open) != 1 {
		t.Fatalf("want one created and one open alert, got creates=%d open=%d", creates, len(open))
	}
}
