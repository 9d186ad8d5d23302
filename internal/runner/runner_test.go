package runner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/infrawatch/internal/alerting"
	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/notify"
	"github.com/hamed0406/infrawatch/internal/probe"
	"github.com/hamed0406/infrawatch/internal/repo"
	"github.com/hamed0406/infrawatch/internal/repo/memory"
	"github.com/hamed0406/infrawatch/internal/repo/repotest"
)

type fakeProber struct {
	mu    sync.Mutex
	calls int
	host  string
	spec  domain.Spec
	out   probe.Outcome
	err   error
}

func (f *fakeProber) Probe(ctx context.Context, host string, spec domain.Spec, timeout time.Duration) (probe.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.host, f.spec = host, spec
	return f.out, f.err
}

type countingNotifier struct{ n int }

func (c *countingNotifier) Send(context.Context, string, string) error {
	c.n++
	return nil
}

func newRunner(st *memory.Store, p probe.Prober, n notify.Notifier) *Runner {
	am := alerting.NewManager(st, n, zap.NewNop(), alerting.Config{SubjectPrefix: "infrawatch"})
	return New(st, p, am, zap.NewNop(), Config{})
}

func lat(v float64) *float64 { return &v }

func TestRunner_HTTP503OpensAlert(t *testing.T) {
	ctx := context.Background()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	st := memory.New()
	a, c := repotest.Seed(t, st, "web-1", domain.Check{
		Name: "homepage", Kind: domain.KindHTTP, Target: strings.TrimPrefix(ts.URL, "http://"),
		ExpectedStatus: 200, Enabled: true,
	})
	n := &countingNotifier{}
	r := newRunner(st, probe.NewSet(false), n)

	res, err := r.Execute(ctx, c.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.OK || res.Message != "HTTP 503 (expected 200)" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.LatencyMS == nil || res.StatusCode == nil || *res.StatusCode != 503 {
		t.Fatalf("semantic failure should keep latency and status: %+v", res)
	}

	open, _ := st.ListAlerts(ctx, repo.AlertFilter{OpenOnly: true})
	if len(open) != 1 || open[0].Severity != domain.SeverityCritical || open[0].Title != a.Name+": homepage FAILED" {
		t.Fatalf("alert not opened as expected: %+v", open)
	}
	if n.n != 1 {
		t.Fatalf("want one notification, got %d", n.n)
	}
	got, _ := st.GetCheck(ctx, c.ID)
	if got.LastRunAt == nil {
		t.Fatalf("last run not updated")
	}
}

func TestRunner_RecoveryClosesAlert(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	_, c := repotest.Seed(t, st, "web-1", domain.Check{Kind: domain.KindHTTP, Enabled: true})
	p := &fakeProber{err: &probe.StatusError{Got: 503, Want: 200}}
	n := &countingNotifier{}
	r := newRunner(st, p, n)

	if _, err := r.Execute(ctx, c.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	p.err, p.out = nil, probe.Outcome{Message: "HTTP OK", LatencyMS: lat(12)}
	res, err := r.Execute(ctx, c.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.OK || res.Message != "HTTP OK" {
		t.Fatalf("unexpected result %+v", res)
	}
	all, _ := st.ListAlerts(ctx, repo.AlertFilter{})
	if len(all) != 1 || all[0].IsOpen || all[0].ClosedAt == nil {
		t.Fatalf("alert should be closed and no new one created: %+v", all)
	}
	if n.n != 1 {
		t.Fatalf("recovery must not notify, got %d", n.n)
	}
}

func TestRunner_SSLBelowThreshold(t *testing.T) {
	st := memory.New()
	_, c := repotest.Seed(t, st, "edge", domain.Check{Kind: domain.KindSSLExpiry, SSLDaysThreshold: 14, Enabled: true})
	p := &fakeProber{err: &probe.ExpiryError{Days: 10, Threshold: 14}, out: probe.Outcome{LatencyMS: lat(30), DaysLeft: 10}}
	r := newRunner(st, p, nil)

	res, err := r.Execute(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.OK || res.Message != "SSL expires in 10 days (threshold 14)" {
		t.Fatalf("unexpected result %+v", res)
	}
	sp, ok := p.spec.(domain.SSLExpirySpec)
	if !ok || sp.Port != 443 || sp.DaysThreshold != 14 {
		t.Fatalf("ssl spec defaults not applied: %#v", p.spec)
	}
}

func TestRunner_MissingPortSkipsNetwork(t *testing.T) {
	st := memory.New()
	_, c := repotest.Seed(t, st, "db", domain.Check{Name: "pg", Kind: domain.KindTCPPort, Enabled: true})
	p := &fakeProber{}
	r := newRunner(st, p, nil)

	res, err := r.Execute(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.OK || res.Message != "Missing port" || res.LatencyMS != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if p.calls != 0 {
		t.Fatalf("no probe expected, got %d calls", p.calls)
	}
}

func TestRunner_UnknownKindStillRecords(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	_, c := repotest.Seed(t, st, "box", domain.Check{Name: "snmp", Kind: domain.Kind("snmp"), Enabled: true})
	r := newRunner(st, &fakeProber{}, nil)

	res, err := r.Execute(ctx, c.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.OK || res.Message != "Unknown kind: snmp" || res.LatencyMS != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if open, _ := st.ListAlerts(ctx, repo.AlertFilter{OpenOnly: true}); len(open) != 1 {
		t.Fatalf("unknown kind is a failure and should alert")
	}
}

func TestRunner_TruncatesMessage(t *testing.T) {
	st := memory.New()
	_, c := repotest.Seed(t, st, "noisy", domain.Check{Enabled: true})
	r := newRunner(st, &fakeProber{err: errors.New(strings.Repeat("x", 5000))}, nil)

	res, err := r.Execute(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Message) != domain.MaxMessageLen {
		t.Fatalf("message length = %d", len(res.Message))
	}
}

func TestRunner_DisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	_, off := repotest.Seed(t, st, "a1", domain.Check{Enabled: false})

	asset := &domain.Asset{Name: "a2", Address: "10.0.0.2", Enabled: false}
	if err := st.CreateAsset(ctx, asset); err != nil {
		t.Fatal(err)
	}
	onDisabledAsset := &domain.Check{AssetID: asset.ID, Name: "ping", Kind: domain.KindPing, Enabled: true}
	if err := st.CreateCheck(ctx, onDisabledAsset); err != nil {
		t.Fatal(err)
	}

	p := &fakeProber{}
	r := newRunner(st, p, nil)
	for _, id := range []domain.CheckID{off.ID, onDisabledAsset.ID} {
		res, err := r.Execute(ctx, id)
		if err != nil || res != nil {
			t.Fatalf("disabled run should be a no-op: res=%+v err=%v", res, err)
		}
	}
	if p.calls != 0 {
		t.Fatalf("probe ran for disabled check")
	}
	if rs, _ := st.ResultsSince(ctx, time.Time{}, ""); len(rs) != 0 {
		t.Fatalf("no results expected, got %d", len(rs))
	}
	if got, _ := st.GetCheck(ctx, off.ID); got.LastRunAt != nil {
		t.Fatalf("last run must not move for a disabled check")
	}
}

func TestRunner_HostFallsBackToAsset(t *testing.T) {
	st := memory.New()
	_, c := repotest.Seed(t, st, "h", domain.Check{Enabled: true})
	p := &fakeProber{out: probe.Outcome{Message: "Ping OK", LatencyMS: lat(1)}}
	r := newRunner(st, p, nil)

	if _, err := r.Execute(context.Background(), c.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if p.host != "10.0.0.1" {
		t.Fatalf("host = %q, want asset address", p.host)
	}
}

func TestRunner_UnknownCheck(t *testing.T) {
	r := newRunner(memory.New(), &fakeProber{}, nil)
	if err := r.Run(context.Background(), "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
