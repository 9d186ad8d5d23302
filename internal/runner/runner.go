// Package runner executes one check: probe, record, update last run, then
// hand the outcome to the alert manager.
package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/infrawatch/internal/alerting"
	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/keylock"
	"github.com/hamed0406/infrawatch/internal/metrics"
	"github.com/hamed0406/infrawatch/internal/probe"
)

const defaultTimeout = 5 * time.Second

// Store is the part of repo.Store a run touches.
type Store interface {
	GetCheck(ctx context.Context, id domain.CheckID) (*domain.Check, error)
	GetAsset(ctx context.Context, id domain.AssetID) (*domain.Asset, error)
	AppendResult(ctx context.Context, r *domain.CheckResult) error
	SetLastRun(ctx context.Context, id domain.CheckID, at time.Time) error
}

type AlertSink interface {
	OnResult(ctx context.Context, r alerting.Result) error
}

type Config struct {
	// DefaultTimeout applies to checks without a positive timeout.
	DefaultTimeout time.Duration
	Metrics        *metrics.Recorder
	Now            func() time.Time
}

type Runner struct {
	store  Store
	prober probe.Prober
	alerts AlertSink
	log    *zap.Logger
	cfg    Config
	locks  keylock.Map
}

func New(store Store, prober probe.Prober, alerts AlertSink, log *zap.Logger, cfg Config) *Runner {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{store: store, prober: prober, alerts: alerts, log: log, cfg: cfg}
}

// Run satisfies the queue worker contract.
func (r *Runner) Run(ctx context.Context, id domain.CheckID) error {
	_, err := r.Execute(ctx, id)
	return err
}

// Execute runs the check once and returns the stored result. A disabled check
// or asset yields (nil, nil). Probe failures become failing results; only
// store and alert errors are returned.
func (r *Runner) Execute(ctx context.Context, id domain.CheckID) (*domain.CheckResult, error) {
	defer r.locks.Lock(string(id))()

	c, err := r.store.GetCheck(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load check %s: %w", id, err)
	}
	a, err := r.store.GetAsset(ctx, c.AssetID)
	if err != nil {
		return nil, fmt.Errorf("load asset %s: %w", c.AssetID, err)
	}
	if !c.Enabled || !a.Enabled {
		r.log.Debug("check_skipped", zap.String("check_id", string(id)), zap.String("asset", a.Name))
		return nil, nil
	}

	host := c.Host(*a)
	out, perr := r.probe(ctx, c, host)

	res := &domain.CheckResult{
		CheckID:    c.ID,
		AssetID:    a.ID,
		OK:         perr == nil,
		StatusCode: out.StatusCode,
		Message:    out.Message,
		LatencyMS:  out.LatencyMS,
		RecordedAt: r.cfg.Now().UTC(),
	}
	class := ""
	if perr != nil {
		res.Message = perr.Error()
		class = probe.Classify(perr)
	}
	res.Message = domain.Truncate(res.Message)

	if err := r.store.AppendResult(ctx, res); err != nil {
		return nil, fmt.Errorf("record result for %s: %w", id, err)
	}
	if err := r.store.SetLastRun(ctx, c.ID, r.cfg.Now().UTC()); err != nil {
		return res, fmt.Errorf("set last run for %s: %w", id, err)
	}

	r.cfg.Metrics.CheckRun(string(c.Kind), res.OK, res.LatencyMS, class)
	fields := []zap.Field{
		zap.String("check_id", string(c.ID)),
		zap.String("asset", a.Name),
		zap.String("kind", string(c.Kind)),
		zap.Bool("ok", res.OK),
	}
	if res.LatencyMS != nil {
		fields = append(fields, zap.Float64("latency_ms", *res.LatencyMS))
	}
	if res.OK {
		r.log.Info("check_run", fields...)
	} else {
		r.log.Info("check_run", append(fields, zap.String("class", class), zap.String("message", res.Message))...)
	}

	if r.alerts != nil {
		err := r.alerts.OnResult(ctx, alerting.Result{
			Check:   *c,
			Asset:   *a,
			Host:    host,
			OK:      res.OK,
			Message: res.Message,
			At:      res.RecordedAt,
		})
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// probe resolves the check's variant and runs it. Configuration errors never
// reach the network.
func (r *Runner) probe(ctx context.Context, c *domain.Check, host string) (probe.Outcome, error) {
	spec, err := c.Spec()
	if err != nil {
		return probe.Outcome{}, err
	}
	timeout := r.cfg.DefaultTimeout
	if c.TimeoutSeconds > 0 {
		timeout = time.Duration(c.TimeoutSeconds) * time.Second
	}
	return r.prober.Probe(ctx, host, spec, timeout)
}
