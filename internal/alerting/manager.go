// Package alerting keeps at most one open alert per check and fires the
// notification hook when an alert is created.
package alerting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/keylock"
	"github.com/hamed0406/infrawatch/internal/metrics"
	"github.com/hamed0406/infrawatch/internal/notify"
	"github.com/hamed0406/infrawatch/internal/repo"
)

const notifyTimeout = 15 * time.Second

type Config struct {
	// SubjectPrefix renders notification subjects as "[prefix] title".
	SubjectPrefix string
	Metrics       *metrics.Recorder
}

// Result is the slice of a check execution the manager needs.
type Result struct {
	Check   domain.Check
	Asset   domain.Asset
	Host    string
	OK      bool
	Message string
	At      time.Time
}

type Manager struct {
	store    repo.AlertStore
	notifier notify.Notifier
	log      *zap.Logger
	cfg      Config
	locks    keylock.Map
}

func NewManager(store repo.AlertStore, notifier notify.Notifier, log *zap.Logger, cfg Config) *Manager {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, notifier: notifier, log: log, cfg: cfg}
}

func Title(assetName, checkName string) string {
	return fmt.Sprintf("%s: %s FAILED", assetName, checkName)
}

func Details(assetName, host string, kind domain.Kind, message string) string {
	return fmt.Sprintf("Asset: %s\nHost: %s\nKind: %s\nMessage: %s", assetName, host, kind, message)
}

func (m *Manager) Subject(title string) string {
	if m.cfg.SubjectPrefix == "" {
		return title
	}
	return "[" + m.cfg.SubjectPrefix + "] " + title
}

// OnResult applies one result to the check's alert state. Store errors are
// returned; notification errors never are.
func (m *Manager) OnResult(ctx context.Context, r Result) error {
	defer m.locks.Lock(string(r.Check.ID))()

	at := r.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if r.OK {
		n, err := m.store.CloseOpenAlerts(ctx, r.Check.ID, at)
		if err != nil {
			return fmt.Errorf("close alerts for %s: %w", r.Check.ID, err)
		}
		if n > 0 {
			m.cfg.Metrics.AlertsClosed(n)
			m.log.Info("alert_closed",
				zap.String("check_id", string(r.Check.ID)),
				zap.String("asset", r.Asset.Name),
				zap.Int("count", n))
		}
		return nil
	}

	a := &domain.Alert{
		CheckID:  r.Check.ID,
		AssetID:  r.Asset.ID,
		Severity: domain.SeverityCritical,
		Title:    Title(r.Asset.Name, r.Check.Name),
		Details:  Details(r.Asset.Name, r.Host, r.Check.Kind, r.Message),
		OpenedAt: at,
	}
	created, err := m.store.UpsertOpenAlert(ctx, a)
	if err != nil {
		return fmt.Errorf("upsert alert for %s: %w", r.Check.ID, err)
	}
	if !created {
		return nil
	}

	m.cfg.Metrics.AlertOpened()
	m.log.Warn("alert_opened",
		zap.String("alert_id", a.ID),
		zap.String("check_id", string(r.Check.ID)),
		zap.String("asset", r.Asset.Name),
		zap.String("title", a.Title))
	m.notify(ctx, a)
	return nil
}

// notify is best effort: the error is logged and counted, then dropped.
func (m *Manager) notify(ctx context.Context, a *domain.Alert) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := m.notifier.Send(nctx, m.Subject(a.Title), a.Details); err != nil {
		m.cfg.Metrics.NotifyFailed()
		m.log.Warn("notify_failed", zap.String("alert_id", a.ID), zap.Error(err))
	}
}
