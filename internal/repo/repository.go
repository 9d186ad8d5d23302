package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/infrawatch/internal/domain"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("not found")

// Ports (interfaces); every adapter under repo/ implements Store.
type AssetStore interface {
	CreateAsset(ctx context.Context, a *domain.Asset) error
	GetAsset(ctx context.Context, id domain.AssetID) (*domain.Asset, error)
	AssetByName(ctx context.Context, name string) (*domain.Asset, error)
	// UpdateAsset saves type, address, description, tags and enabled. The
	// name is the natural key and never changes.
	UpdateAsset(ctx context.Context, a *domain.Asset) error
	ListAssets(ctx context.Context) ([]*domain.Asset, error)
}

type CheckStore interface {
	CreateCheck(ctx context.Context, c *domain.Check) error
	// UpdateCheck saves configuration fields. LastRunAt is left untouched.
	UpdateCheck(ctx context.Context, c *domain.Check) error
	GetCheck(ctx context.Context, id domain.CheckID) (*domain.Check, error)
	CheckByName(ctx context.Context, assetID domain.AssetID, name string) (*domain.Check, error)
	ListChecks(ctx context.Context) ([]*domain.Check, error)
	ListChecksByAsset(ctx context.Context, assetID domain.AssetID) ([]*domain.Check, error)
	// ListSchedulable returns enabled checks whose asset is enabled.
	ListSchedulable(ctx context.Context) ([]*domain.Check, error)
	SetLastRun(ctx context.Context, id domain.CheckID, at time.Time) error
}

type ResultStore interface {
	AppendResult(ctx context.Context, r *domain.CheckResult) error
	// ResultsSince returns results recorded at or after since, oldest first.
	// An empty assetID selects every asset.
	ResultsSince(ctx context.Context, since time.Time, assetID domain.AssetID) ([]*domain.CheckResult, error)
	// RecentResults returns the newest results of an asset, newest first.
	RecentResults(ctx context.Context, assetID domain.AssetID, limit int) ([]*domain.CheckResult, error)
}

type AlertFilter struct {
	OpenOnly bool
	AssetID  domain.AssetID
	Limit    int
}

type AlertStore interface {
	// UpsertOpenAlert creates a's alert when its check has no open alert,
	// otherwise it updates severity, title and details of the open one.
	// It reports whether a new alert was created.
	UpsertOpenAlert(ctx context.Context, a *domain.Alert) (bool, error)
	// CloseOpenAlerts closes every open alert of the check and reports how many.
	CloseOpenAlerts(ctx context.Context, checkID domain.CheckID, at time.Time) (int, error)
	// ListAlerts returns alerts newest first.
	ListAlerts(ctx context.Context, f AlertFilter) ([]*domain.Alert, error)
}

type Store interface {
	AssetStore
	CheckStore
	ResultStore
	AlertStore
	Close() error
}
