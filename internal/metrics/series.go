// Package metrics answers the dashboard's windowed queries by bucketing stored
// results, and owns the Prometheus instruments of the process.
package metrics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/repo"
)

const (
	Window24h = 24 * time.Hour
	Window7d  = 7 * 24 * time.Hour

	LabelClock   = "15:04"
	LabelDayHour = "02/01 15h"
)

// Series is ordered by bucket start. Empty buckets are absent.
type Series struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
	Asset  string    `json:"asset,omitempty"`
}

// Store is everything the aggregator reads.
type Store interface {
	repo.AssetStore
	repo.CheckStore
	repo.ResultStore
	repo.AlertStore
}

type Aggregator struct {
	store Store
	loc   *time.Location
	// Now is the clock; tests pin it.
	Now func() time.Time
}

// NewAggregator buckets in loc; nil means UTC.
func NewAggregator(store Store, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{store: store, loc: loc, Now: time.Now}
}

func (a *Aggregator) GlobalLatency24h(ctx context.Context) (Series, error) {
	rs, err := a.store.ResultsSince(ctx, a.Now().Add(-Window24h), "")
	if err != nil {
		return Series{}, err
	}
	return LatencySeries(rs, 10*time.Minute, a.loc, LabelClock), nil
}

func (a *Aggregator) GlobalUptime24h(ctx context.Context) (Series, error) {
	rs, err := a.store.ResultsSince(ctx, a.Now().Add(-Window24h), "")
	if err != nil {
		return Series{}, err
	}
	return UptimeSeries(rs, time.Hour, a.loc, LabelClock), nil
}

func (a *Aggregator) AssetLatency7d(ctx context.Context, id domain.AssetID) (Series, error) {
	asset, rs, err := a.assetResults(ctx, id, Window7d)
	if err != nil {
		return Series{}, err
	}
	s := LatencySeries(rs, time.Hour, a.loc, LabelDayHour)
	s.Asset = asset.Name
	return s, nil
}

func (a *Aggregator) AssetUptime7d(ctx context.Context, id domain.AssetID) (Series, error) {
	asset, rs, err := a.assetResults(ctx, id, Window7d)
	if err != nil {
		return Series{}, err
	}
	s := UptimeSeries(rs, time.Hour, a.loc, LabelDayHour)
	s.Asset = asset.Name
	return s, nil
}

func (a *Aggregator) assetResults(ctx context.Context, id domain.AssetID, window time.Duration) (*domain.Asset, []*domain.CheckResult, error) {
	asset, err := a.store.GetAsset(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rs, err := a.store.ResultsSince(ctx, a.Now().Add(-window), id)
	if err != nil {
		return nil, nil, err
	}
	return asset, rs, nil
}

// BucketStart floors t to width on loc's wall clock. The floor is taken on
// the instant shifted by t's own offset, so the repeated hour of a DST
// fall-back yields two buckets and the start never comes after t.
// width must divide an hour or be one.
func BucketStart(t time.Time, width time.Duration, loc *time.Location) time.Time {
	_, off := t.In(loc).Zone()
	shift := time.Duration(off) * time.Second
	return t.Add(shift).Truncate(width).Add(-shift).In(loc)
}

type bucket struct {
	start    time.Time
	sum      float64
	n, ok, t int
}

func group(rs []*domain.CheckResult, width time.Duration, loc *time.Location, add func(*bucket, *domain.CheckResult)) []*bucket {
	idx := map[int64]*bucket{}
	var out []*bucket
	for _, r := range rs {
		start := BucketStart(r.RecordedAt, width, loc)
		b, seen := idx[start.UnixNano()]
		if !seen {
			b = &bucket{start: start}
			idx[start.UnixNano()] = b
			out = append(out, b)
		}
		add(b, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return out
}

// LatencySeries averages non-null latencies per bucket, rounded to 1 decimal.
func LatencySeries(rs []*domain.CheckResult, width time.Duration, loc *time.Location, layout string) Series {
	s := Series{Labels: []string{}, Values: []float64{}}
	for _, b := range group(rs, width, loc, func(b *bucket, r *domain.CheckResult) {
		if r.LatencyMS != nil {
			b.sum += *r.LatencyMS
			b.n++
		}
	}) {
		if b.n == 0 {
			continue
		}
		s.Labels = append(s.Labels, b.start.Format(layout))
		s.Values = append(s.Values, Round(b.sum/float64(b.n), 1))
	}
	return s
}

// UptimeSeries is the ok percentage per bucket, rounded to 2 decimals.
func UptimeSeries(rs []*domain.CheckResult, width time.Duration, loc *time.Location, layout string) Series {
	s := Series{Labels: []string{}, Values: []float64{}}
	for _, b := range group(rs, width, loc, func(b *bucket, r *domain.CheckResult) {
		b.t++
		if r.OK {
			b.ok++
		}
	}) {
		s.Labels = append(s.Labels, b.start.Format(layout))
		s.Values = append(s.Values, Round(Uptime(b.ok, b.t), 2))
	}
	return s
}

// Uptime is ok/total as a percentage; an empty window counts as fully up.
func Uptime(ok, total int) float64 {
	if total == 0 {
		return 100.0
	}
	return float64(ok) / float64(total) * 100.0
}

func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
