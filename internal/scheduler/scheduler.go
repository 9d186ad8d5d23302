// Package scheduler decides which checks are due on every tick and hands
// them to the work queue without waiting for the runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/metrics"
	"github.com/hamed0406/infrawatch/internal/queue"
)

const DefaultSchedule = "@every 60s"

type Store interface {
	ListSchedulable(ctx context.Context) ([]*domain.Check, error)
}

type Queue interface {
	Enqueue(ctx context.Context, id domain.CheckID) error
}

type Config struct {
	// Schedule is a cron spec, e.g. "@every 60s" or "*/5 * * * *".
	Schedule string
	Metrics  *metrics.Recorder
	Now      func() time.Time
}

type Scheduler struct {
	store Store
	queue Queue
	log   *zap.Logger
	cfg   Config
	sched cron.Schedule
}

func New(store Store, q Queue, log *zap.Logger, cfg Config) (*Scheduler, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	return &Scheduler{store: store, queue: q, log: log, cfg: cfg, sched: sched}, nil
}

// Tick dispatches every due check. Enqueue failures do not stop the tick;
// they are combined into the returned error.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	checks, err := s.store.ListSchedulable(ctx)
	if err != nil {
		return fmt.Errorf("list schedulable checks: %w", err)
	}

	var (
		errs       error
		dispatched int
	)
	for _, c := range checks {
		if !c.Due(now) {
			continue
		}
		if err := s.queue.Enqueue(ctx, c.ID); err != nil {
			s.cfg.Metrics.DispatchFailed(reason(err))
			s.log.Error("dispatch_failed", zap.String("check_id", string(c.ID)), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("enqueue %s: %w", c.ID, err))
			continue
		}
		dispatched++
	}
	s.log.Debug("tick", zap.Int("checks", len(checks)), zap.Int("dispatched", dispatched))
	return errs
}

// Run ticks immediately, then on the configured schedule until ctx ends.
// A tick still running when the next one fires makes that one a no-op.
func (s *Scheduler) Run(ctx context.Context) error {
	clog := cronLogger{s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	c.Schedule(s.sched, cron.FuncJob(func() { s.tick(ctx) }))

	s.log.Info("scheduler_started", zap.String("schedule", s.cfg.Schedule))
	s.tick(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("scheduler_stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.Tick(ctx, s.cfg.Now()); err != nil {
		s.log.Error("tick_failed", zap.Error(err))
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, queue.ErrStopped):
		return "stopped"
	default:
		return "other"
	}
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron_"+msg, append(keysAndValues, "error", err)...)
}
