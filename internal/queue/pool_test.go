package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/infrawatch/internal/domain"
)

type recorder struct {
	mu  sync.Mutex
	ids []domain.CheckID
}

func (r *recorder) Run(ctx context.Context, id domain.CheckID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func TestPool_RunsEveryEnqueuedCheck(t *testing.T) {
	rec := &recorder{}
	p := New(rec, zap.NewNop(), Config{Workers: 3, Size: 16})
	p.Start(context.Background())

	for _, id := range []domain.CheckID{"a", "b", "c", "d"} {
		if err := p.Enqueue(context.Background(), id); err != nil {
			t.Fatalf("Enqueue %s: %v", id, err)
		}
	}
	p.Stop()
	if rec.count() != 4 {
		t.Fatalf("want 4 runs, got %d", rec.count())
	}
	if err := p.Enqueue(context.Background(), "e"); !errors.Is(err, ErrStopped) {
		t.Fatalf("want ErrStopped after Stop, got %v", err)
	}
}

func TestPool_FullQueueRejects(t *testing.T) {
	p := New(&recorder{}, zap.NewNop(), Config{Workers: 1, Size: 2})
	// not started: nothing drains the channel
	_ = p.Enqueue(context.Background(), "a")
	_ = p.Enqueue(context.Background(), "b")
	if err := p.Enqueue(context.Background(), "c"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("want ErrQueueFull, got %v", err)
	}
}

func TestPool_CoalescesQueuedOrRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var runs int
	var mu sync.Mutex
	h := HandlerFunc(func(ctx context.Context, id domain.CheckID) error {
		mu.Lock()
		runs++
		mu.Unlock()
		started <- struct{}{}
		<-release
		return nil
	})
	p := New(h, zap.NewNop(), Config{Workers: 2, Size: 8})
	p.Start(context.Background())

	_ = p.Enqueue(context.Background(), "slow")
	<-started
	for i := 0; i < 3; i++ {
		if err := p.Enqueue(context.Background(), "slow"); err != nil {
			t.Fatalf("duplicate enqueue should be accepted silently: %v", err)
		}
	}
	if p.Len() != 1 {
		t.Fatalf("want 1 pending, got %d", p.Len())
	}
	close(release)
	p.Stop()

	if runs != 1 {
		t.Fatalf("duplicate dispatch ran %d times", runs)
	}
}

func TestPool_LogsHandlerErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	p := New(HandlerFunc(func(context.Context, domain.CheckID) error { return errors.New("db gone") }), zap.New(core), Config{})
	p.Start(context.Background())
	_ = p.Enqueue(context.Background(), "x")
	p.Stop()

	if logs.FilterMessage("run_failed").Len() != 1 {
		t.Fatalf("handler error should be logged")
	}
}

func TestPool_RateLimited(t *testing.T) {
	rec := &recorder{}
	p := New(rec, zap.NewNop(), Config{Workers: 4, Size: 8, Rate: 20})
	p.Start(context.Background())

	start := time.Now()
	for _, id := range []domain.CheckID{"1", "2", "3", "4", "5", "6"} {
		_ = p.Enqueue(context.Background(), id)
	}
	p.Stop()
	// burst of 20 covers all six, so the limiter must not stall them
	if time.Since(start) > 2*time.Second || rec.count() != 6 {
		t.Fatalf("rate limiter stalled: %d runs in %v", rec.count(), time.Since(start))
	}
}

func TestPool_CancelStopsWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(&recorder{}, zap.NewNop(), Config{Workers: 2})
	p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() { p.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not exit after cancel")
	}
}

func TestPool_ShutdownLetsRunningCheckFinish(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	result := make(chan error, 1)
	p := New(HandlerFunc(func(ctx context.Context, id domain.CheckID) error {
		close(started)
		<-release
		result <- ctx.Err()
		return nil
	}), zap.NewNop(), Config{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	if err := p.Enqueue(ctx, "slow"); err != nil {
		t.Fatal(err)
	}
	<-started
	cancel()
	close(release)

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("running check saw cancellation: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never finished")
	}
	p.Stop()
}

func TestPool_RecoversHandlerPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	rec := &recorder{}
	p := New(HandlerFunc(func(ctx context.Context, id domain.CheckID) error {
		if id == "boom" {
			panic("handler exploded")
		}
		return rec.Run(ctx, id)
	}), zap.New(core), Config{Workers: 1, Size: 4})
	p.Start(context.Background())
	_ = p.Enqueue(context.Background(), "boom")
	_ = p.Enqueue(context.Background(), "after")
	p.Stop()

	if rec.count() != 1 {
		t.Fatalf("worker should survive a panic, ran %d", rec.count())
	}
	if logs.FilterMessage("run_panicked").Len() != 1 {
		t.Fatalf("panic not logged")
	}
}
