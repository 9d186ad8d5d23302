package inventory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/repo/memory"
)

const sample = `
assets:
  - name: web-1
    type: server
    address: 10.0.0.5
    tags: prod, web
    checks:
      - {name: ping, kind: ping}
      - {name: https, kind: http, target: https://example.com, expected_status: 200}
  - name: db-1
    address: db.internal
    tags: [prod, db]
    enabled: false
    checks:
      - {name: pg, kind: tcp_port, port: 5432, interval_seconds: 30}
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(f.Assets) != 2 || len(f.Assets[0].Checks) != 2 {
		t.Fatalf("unexpected %+v", f)
	}
	if f.Assets[1].Tags != "prod, db" {
		t.Fatalf("list tags not joined: %q", f.Assets[1].Tags)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("want error for missing file")
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]struct {
		doc  string
		want []string
	}{
		"bad kind": {`assets: [{name: a, checks: [{name: x, kind: snmp}]}]`, []string{"Kind", "oneof"}},
		"no name":  {`assets: [{address: 1.2.3.4}]`, []string{"Name", "required"}},
		"bad port": {`assets: [{name: a, checks: [{name: x, kind: tcp_port, port: 70000}]}]`, []string{"Port", "max"}},
		"no port":  {`assets: [{name: a, checks: [{name: x, kind: tcp_port}]}]`, []string{"Missing port"}},
		"negative": {`assets: [{name: a, checks: [{name: x, kind: ping, interval_seconds: -5}]}]`, []string{"IntervalSeconds"}},
		"dup":      {`assets: [{name: a}, {name: a}]`, []string{"declared twice"}},
		"unknown":  {`assets: [{name: a, colour: red}]`, []string{"colour"}},
		"bad type": {`assets: [{name: a, type: toaster}]`, []string{"Type"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if err == nil {
				t.Fatalf("want error")
			}
			for _, w := range tc.want {
				if !strings.Contains(err.Error(), w) {
					t.Fatalf("error %q should mention %q", err, w)
				}
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(nil)
	if err != nil || len(f.Assets) != 0 {
		t.Fatalf("empty document: %+v %v", f, err)
	}
}

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	stats, err := Seed(ctx, st, f, zap.NewNop())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if stats.AssetsCreated != 2 || stats.ChecksCreated != 3 {
		t.Fatalf("first seed %+v", stats)
	}

	db, err := st.AssetByName(ctx, "db-1")
	if err != nil {
		t.Fatal(err)
	}
	if db.Enabled || db.Type != domain.AssetOther {
		t.Fatalf("db-1 %+v", db)
	}
	pg, err := st.CheckByName(ctx, db.ID, "pg")
	if err != nil {
		t.Fatal(err)
	}
	ran := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := st.SetLastRun(ctx, pg.ID, ran); err != nil {
		t.Fatal(err)
	}

	f.Assets[1].Address = "db2.internal"
	f.Assets[1].Checks[0].IntervalSeconds = 90
	stats, err = Seed(ctx, st, f, zap.NewNop())
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if stats.AssetsCreated != 0 || stats.ChecksCreated != 0 || stats.AssetsUpdated != 2 || stats.ChecksUpdated != 3 {
		t.Fatalf("reseed %+v", stats)
	}
	assets, _ := st.ListAssets(ctx)
	if len(assets) != 2 {
		t.Fatalf("assets duplicated: %d", len(assets))
	}
	db, _ = st.AssetByName(ctx, "db-1")
	if db.Address != "db2.internal" {
		t.Fatalf("address not updated: %+v", db)
	}
	pg, _ = st.GetCheck(ctx, pg.ID)
	if pg.IntervalSeconds != 90 || pg.LastRunAt == nil || !pg.LastRunAt.Equal(ran) {
		t.Fatalf("check %+v", pg)
	}
}

func TestSeed_Defaults(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	f, err := Parse([]byte(`assets: [{name: a, checks: [{name: p, kind: ping}]}]`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Seed(ctx, st, f, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	cs, _ := st.ListChecks(ctx)
	if len(cs) != 1 || !cs[0].Enabled || cs[0].IntervalSeconds != domain.DefaultIntervalSeconds {
		t.Fatalf("defaults %+v", cs)
	}
}

func TestSeed_SSLThresholdZeroKept(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	f, err := Parse([]byte(`
assets:
  - name: web
    address: example.org
    checks:
      - {name: cert-default, kind: ssl_expiry}
      - {name: cert-expired-only, kind: ssl_expiry, ssl_days_threshold: 0}
      - {name: cert-30, kind: ssl_expiry, ssl_days_threshold: 30}
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Seed(ctx, st, f, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	cs, _ := st.ListChecks(ctx)
	got := map[string]int{}
	for _, c := range cs {
		got[c.Name] = c.SSLDaysThreshold
	}
	want := map[string]int{"cert-default": domain.DefaultSSLDaysThreshold, "cert-expired-only": 0, "cert-30": 30}
	for name, w := range want {
		if got[name] != w {
			t.Fatalf("%s: threshold want %d, got %d", name, w, got[name])
		}
	}
	for _, c := range cs {
		if c.Name != "cert-expired-only" {
			continue
		}
		spec, err := c.Spec()
		if err != nil {
			t.Fatal(err)
		}
		if spec.(domain.SSLExpirySpec).DaysThreshold != 0 {
			t.Fatalf("zero threshold rewritten: %+v", spec)
		}
	}
}
