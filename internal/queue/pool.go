// Package queue is the in-process work queue between the scheduler and the
// check runner: Enqueue hands off a check ID and returns immediately, a fixed
// set of workers consume them.
package queue

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/metrics"
)

var (
	ErrQueueFull = errors.New("work queue full")
	ErrStopped   = errors.New("work queue stopped")
)

// Handler executes one dispatched check.
type Handler interface {
	Run(ctx context.Context, id domain.CheckID) error
}

type HandlerFunc func(ctx context.Context, id domain.CheckID) error

func (f HandlerFunc) Run(ctx context.Context, id domain.CheckID) error { return f(ctx, id) }

type Config struct {
	Workers int
	Size    int
	// Rate caps runs per second across all workers; zero means unlimited.
	Rate    float64
	Metrics *metrics.Recorder
}

type Pool struct {
	h       Handler
	log     *zap.Logger
	cfg     Config
	jobs    chan domain.CheckID
	limiter *rate.Limiter
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[domain.CheckID]struct{}
	started bool
	closed  bool
}

func New(h Handler, log *zap.Logger, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Size <= 0 {
		cfg.Size = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{
		h:       h,
		log:     log,
		cfg:     cfg,
		jobs:    make(chan domain.CheckID, cfg.Size),
		pending: make(map[domain.CheckID]struct{}),
	}
	if cfg.Rate > 0 {
		burst := int(cfg.Rate)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return p
}

// Start launches the workers. They stop taking jobs when ctx is cancelled or
// after Stop once the queue is drained. A run already in progress is not
// cancelled with ctx; it keeps ctx's values and finishes on its own timeouts.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Enqueue never blocks. A check that is already queued or running is not
// queued twice.
func (p *Pool) Enqueue(_ context.Context, id domain.CheckID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrStopped
	}
	if _, dup := p.pending[id]; dup {
		p.log.Debug("dispatch_coalesced", zap.String("check_id", string(id)))
		return nil
	}
	select {
	case p.jobs <- id:
		p.pending[id] = struct{}{}
		p.cfg.Metrics.Dispatched()
		p.cfg.Metrics.QueueDepth(len(p.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Len reports queued plus running checks.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Stop rejects further work and waits for the workers to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-p.jobs:
			if !ok {
				return
			}
			p.cfg.Metrics.QueueDepth(len(p.jobs))
			p.run(ctx, n, id)
		}
	}
}

func (p *Pool) run(ctx context.Context, n int, id domain.CheckID) {
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
	}
	defer func() {
		if v := recover(); v != nil {
			p.log.Error("run_panicked", zap.Int("worker", n), zap.String("check_id", string(id)), zap.Any("panic", v))
		}
	}()
	if err := p.h.Run(context.WithoutCancel(ctx), id); err != nil {
		p.log.Error("run_failed", zap.Int("worker", n), zap.String("check_id", string(id)), zap.Error(err))
	}
}
