package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/queue"
	"github.com/hamed0406/infrawatch/internal/repo/memory"
	"github.com/hamed0406/infrawatch/internal/repo/repotest"
)

// --- fakes ---

type fakeQueue struct {
	mu   sync.Mutex
	ids  []domain.CheckID
	fail map[domain.CheckID]error
}

func (q *fakeQueue) Enqueue(ctx context.Context, id domain.CheckID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.fail[id]; err != nil {
		return err
	}
	q.ids = append(q.ids, id)
	return nil
}

func (q *fakeQueue) dispatched() []domain.CheckID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.CheckID(nil), q.ids...)
}

// --- tests ---

func TestTick_RespectsInterval(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 8, 18, 10, 0, 0, 0, time.UTC)
	st := memory.New()

	_, never := repotest.Seed(t, st, "never", domain.Check{IntervalSeconds: 60, Enabled: true})
	_, recent := repotest.Seed(t, st, "recent", domain.Check{IntervalSeconds: 60, Enabled: true})
	_, stale := repotest.Seed(t, st, "stale", domain.Check{IntervalSeconds: 60, Enabled: true})
	_, exact := repotest.Seed(t, st, "exact", domain.Check{IntervalSeconds: 300, Enabled: true})
	_ = st.SetLastRun(ctx, recent.ID, now.Add(-59*time.Second))
	_ = st.SetLastRun(ctx, stale.ID, now.Add(-61*time.Second))
	_ = st.SetLastRun(ctx, exact.ID, now.Add(-300*time.Second))

	q := &fakeQueue{}
	s, err := New(st, q, zap.NewNop(), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Tick(ctx, now); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	got := map[domain.CheckID]bool{}
	for _, id := range q.dispatched() {
		got[id] = true
	}
	if len(got) != 3 || !got[never.ID] || !got[stale.ID] || !got[exact.ID] || got[recent.ID] {
		t.Fatalf("unexpected dispatch set %v", q.dispatched())
	}
}

func TestTick_SkipsDisabled(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	repotest.Seed(t, st, "off-check", domain.Check{Enabled: false})

	off := &domain.Asset{Name: "off-asset", Address: "x", Enabled: false}
	_ = st.CreateAsset(ctx, off)
	_ = st.CreateCheck(ctx, &domain.Check{AssetID: off.ID, Name: "ping", Kind: domain.KindPing, Enabled: true})

	q := &fakeQueue{}
	s, _ := New(st, q, zap.NewNop(), Config{})
	if err := s.Tick(ctx, time.Now()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n := len(q.dispatched()); n != 0 {
		t.Fatalf("disabled checks dispatched: %d", n)
	}
}

func TestTick_CombinesEnqueueErrors(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	_, a := repotest.Seed(t, st, "a", domain.Check{Enabled: true})
	_, b := repotest.Seed(t, st, "b", domain.Check{Enabled: true})
	_, c := repotest.Seed(t, st, "c", domain.Check{Enabled: true})

	core, logs := observer.New(zap.ErrorLevel)
	q := &fakeQueue{fail: map[domain.CheckID]error{a.ID: queue.ErrQueueFull, c.ID: queue.ErrStopped}}
	s, _ := New(st, q, zap.New(core), Config{})

	err := s.Tick(ctx, time.Now())
	if len(multierr.Errors(err)) != 2 || !errors.Is(err, queue.ErrQueueFull) || !errors.Is(err, queue.ErrStopped) {
		t.Fatalf("want both enqueue errors, got %v", err)
	}
	if d := q.dispatched(); len(d) != 1 || d[0] != b.ID {
		t.Fatalf("remaining checks must still be dispatched: %v", d)
	}
	if logs.FilterMessage("dispatch_failed").Len() != 2 {
		t.Fatalf("dispatch failures should be logged")
	}
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	if _, err := New(memory.New(), &fakeQueue{}, zap.NewNop(), Config{Schedule: "every minute"}); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}

func TestRun_TicksImmediately(t *testing.T) {
	st := memory.New()
	_, c := repotest.Seed(t, st, "boot", domain.Check{Enabled: true})
	q := &fakeQueue{}
	s, _ := New(st, q, zap.NewNop(), Config{Schedule: "@every 1h"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(q.dispatched()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no dispatch on startup")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if q.dispatched()[0] != c.ID {
		t.Fatalf("dispatched %v", q.dispatched())
	}
}

func TestRun_WithPoolAndRunnerLikeHandler(t *testing.T) {
	st := memory.New()
	_, c := repotest.Seed(t, st, "e2e", domain.Check{Enabled: true})

	ran := make(chan domain.CheckID, 4)
	p := queue.New(queue.HandlerFunc(func(ctx context.Context, id domain.CheckID) error {
		ran <- id
		return st.SetLastRun(ctx, id, time.Now().UTC())
	}), zap.NewNop(), queue.Config{Workers: 2, Size: 8})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	s, _ := New(st, p, zap.NewNop(), Config{})
	if err := s.Tick(ctx, time.Now()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	select {
	case id := <-ran:
		if id != c.ID {
			t.Fatalf("ran %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker never ran the dispatched check")
	}
	p.Stop()

	// last run is fresh now, so the next tick skips it
	q := &fakeQueue{}
	s2, _ := New(st, q, zap.NewNop(), Config{})
	_ = s2.Tick(ctx, time.Now())
	if len(q.dispatched()) != 0 {
		t.Fatalf("check dispatched again inside its interval")
	}
}
