package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/metrics"
	"github.com/hamed0406/infrawatch/internal/repo"
	"github.com/hamed0406/infrawatch/internal/repo/memory"
	"github.com/hamed0406/infrawatch/internal/repo/repotest"
)

type memNotifier struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
	err      error
}

func (m *memNotifier) Send(ctx context.Context, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	m.bodies = append(m.bodies, body)
	return m.err
}

func (m *memNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subjects)
}

func setup(t *testing.T, n *memNotifier) (*Manager, *memory.Store, Result, *metrics.Recorder) {
	t.Helper()
	st := memory.New()
	a, c := repotest.Seed(t, st, "web-1", domain.Check{Name: "homepage", Kind: domain.KindHTTP, Enabled: true})
	rec := metrics.NewRecorder()
	m := NewManager(st, n, zap.NewNop(), Config{SubjectPrefix: "infrawatch", Metrics: rec})
	return m, st, Result{Check: *c, Asset: *a, Host: "example.com"}, rec
}

func expectCounter(t *testing.T, rec *metrics.Recorder, name, help string, v int) {
	t.Helper()
	want := fmt.Sprintf("# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
	if err := testutil.GatherAndCompare(rec.Registry(), strings.NewReader(want), name); err != nil {
		t.Fatal(err)
	}
}

func fail(r Result, msg string, at time.Time) Result {
	r.OK, r.Message, r.At = false, msg, at
	return r
}

func pass(r Result, at time.Time) Result {
	r.OK, r.Message, r.At = true, "HTTP OK", at
	return r
}

func TestManager_OpensOnceAndNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	n := &memNotifier{}
	m, st, base, rec := setup(t, n)
	t0 := time.Date(2025, 8, 18, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := m.OnResult(ctx, fail(base, "HTTP 503 (expected 200)", t0.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("OnResult: %v", err)
		}
	}

	open, _ := st.ListAlerts(ctx, repo.AlertFilter{OpenOnly: true})
	if len(open) != 1 {
		t.Fatalf("want one open alert, got %d", len(open))
	}
	a := open[0]
	if a.Severity != domain.SeverityCritical || a.Title != "web-1: homepage FAILED" {
		t.Fatalf("unexpected alert %+v", a)
	}
	wantDetails := "Asset: web-1\nHost: example.com\nKind: http\nMessage: HTTP 503 (expected 200)"
	if a.Details != wantDetails {
		t.Fatalf("details = %q", a.Details)
	}
	if !a.OpenedAt.Equal(t0) {
		t.Fatalf("opened_at moved on update: %v", a.OpenedAt)
	}
	if n.count() != 1 || n.subjects[0] != "[infrawatch] web-1: homepage FAILED" || n.bodies[0] != wantDetails {
		t.Fatalf("notifications = %v", n.subjects)
	}
	expectCounter(t, rec, "infrawatch_alerts_opened_total", "Alerts created.", 1)
}

func TestManager_UpdatesOpenAlertInPlace(t *testing.T) {
	ctx := context.Background()
	n := &memNotifier{}
	m, st, base, _ := setup(t, n)
	t0 := time.Now().UTC()

	_ = m.OnResult(ctx, fail(base, "HTTP 503 (expected 200)", t0))
	_ = m.OnResult(ctx, fail(base, "HTTP 500 (expected 200)", t0.Add(time.Minute)))

	open, _ := st.ListAlerts(ctx, repo.AlertFilter{OpenOnly: true})
	if len(open) != 1 || open[0].Details != Details("web-1", "example.com", domain.KindHTTP, "HTTP 500 (expected 200)") {
		t.Fatalf("open alert not refreshed: %+v", open)
	}
	if n.count() != 1 {
		t.Fatalf("update must not notify, got %d", n.count())
	}
}

func TestManager_ResolvesOnSuccess(t *testing.T) {
	ctx := context.Background()
	n := &memNotifier{}
	m, st, base, _ := setup(t, n)
	t0 := time.Date(2025, 8, 18, 10, 0, 0, 0, time.UTC)

	_ = m.OnResult(ctx, fail(base, "down", t0))
	at := t0.Add(5 * time.Minute)
	if err := m.OnResult(ctx, pass(base, at)); err != nil {
		t.Fatalf("OnResult: %v", err)
	}
	if err := m.OnResult(ctx, pass(base, at.Add(time.Minute))); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	all, _ := st.ListAlerts(ctx, repo.AlertFilter{})
	if len(all) != 1 || all[0].IsOpen || all[0].ClosedAt == nil || !all[0].ClosedAt.Equal(at) {
		t.Fatalf("alert not closed once at %v: %+v", at, all)
	}
	if n.count() != 1 {
		t.Fatalf("close must not notify, got %d", n.count())
	}

	// failing again after resolution is a new incident
	_ = m.OnResult(ctx, fail(base, "down again", at.Add(time.Hour)))
	all, _ = st.ListAlerts(ctx, repo.AlertFilter{})
	if len(all) != 2 || n.count() != 2 {
		t.Fatalf("want a second alert and notification, got %d alerts %d notifications", len(all), n.count())
	}
}

func TestManager_PassWithoutAlertIsNoop(t *testing.T) {
	m, st, base, _ := setup(t, &memNotifier{})
	if err := m.OnResult(context.Background(), pass(base, time.Now())); err != nil {
		t.Fatalf("OnResult: %v", err)
	}
	if all, _ := st.ListAlerts(context.Background(), repo.AlertFilter{}); len(all) != 0 {
		t.Fatalf("no alert expected, got %d", len(all))
	}
}

func TestManager_NotifyFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	n := &memNotifier{err: errors.New("smtp down")}
	st := memory.New()
	a, c := repotest.Seed(t, st, "db-1", domain.Check{Enabled: true})
	rec := metrics.NewRecorder()
	m := NewManager(st, n, zap.New(core), Config{Metrics: rec})

	if err := m.OnResult(ctx, Result{Check: *c, Asset: *a, Host: "10.0.0.1", Message: "timeout"}); err != nil {
		t.Fatalf("notify failure leaked: %v", err)
	}
	open, _ := st.ListAlerts(ctx, repo.AlertFilter{OpenOnly: true})
	if len(open) != 1 {
		t.Fatalf("alert must persist despite notify failure")
	}
	if logs.FilterMessage("notify_failed").Len() != 1 {
		t.Fatalf("notify failure should be logged")
	}
	expectCounter(t, rec, "infrawatch_notify_failures_total", "Notification attempts that failed.", 1)
	if n.subjects[0] != "db-1: ping FAILED" {
		t.Fatalf("subject without prefix = %q", n.subjects[0])
	}
}

func TestManager_ConcurrentFailuresOpenOneAlert(t *testing.T) {
	ctx := context.Background()
	n := &memNotifier{}
	m, st, base, _ := setup(t, n)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.OnResult(ctx, fail(base, "down", time.Now().UTC()))
		}()
	}
	wg.Wait()

	open, _ := st.ListAlerts(ctx, repo.AlertFilter{OpenOnly: true})
	if len(open) != 1 || n.count() != 1 {
		t.Fatalf("want 1 open alert and 1 notification, got %d and %d", len(open), n.count())
	}
}
