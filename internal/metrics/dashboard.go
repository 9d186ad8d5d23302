package metrics

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/repo"
)

const (
	latestAlerts    = 10
	topFailing      = 8
	topAlertAssets  = 5
	tagCloudSize    = 30
	detailAlerts    = 20
	detailResults   = 30
	failingLookback = time.Hour
)

type AlertView struct {
	*domain.Alert
	AssetName string `json:"asset_name"`
	CheckName string `json:"check_name"`
}

type FailingCheck struct {
	Asset string `json:"asset"`
	Check string `json:"check"`
	Fails int    `json:"fails"`
}

type AssetCount struct {
	Asset string `json:"asset"`
	Count int    `json:"count"`
}

type Summary struct {
	Assets         int            `json:"assets"`
	Checks         int            `json:"checks"`
	OpenAlerts     int            `json:"open_alerts"`
	Uptime24h      float64        `json:"uptime_24h"`
	AvgLatency24h  float64        `json:"avg_latency_24h"`
	Results24h     int            `json:"total_results_24h"`
	LatestAlerts   []AlertView    `json:"latest_alerts"`
	FailingChecks  []FailingCheck `json:"failing_checks_1h"`
	TopAlertAssets []AssetCount   `json:"top_alert_assets"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// names resolves asset and check IDs for display.
type names struct {
	assets map[domain.AssetID]*domain.Asset
	checks map[domain.CheckID]*domain.Check
}

func (a *Aggregator) names(ctx context.Context) (*names, []*domain.Asset, []*domain.Check, error) {
	assets, err := a.store.ListAssets(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	checks, err := a.store.ListChecks(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	n := &names{
		assets: make(map[domain.AssetID]*domain.Asset, len(assets)),
		checks: make(map[domain.CheckID]*domain.Check, len(checks)),
	}
	for _, x := range assets {
		n.assets[x.ID] = x
	}
	for _, c := range checks {
		n.checks[c.ID] = c
	}
	return n, assets, checks, nil
}

func (n *names) asset(id domain.AssetID) string {
	if a, ok := n.assets[id]; ok {
		return a.Name
	}
	return string(id)
}

func (n *names) check(id domain.CheckID) string {
	if c, ok := n.checks[id]; ok {
		return c.Name
	}
	return string(id)
}

func (n *names) alertViews(alerts []*domain.Alert) []AlertView {
	out := make([]AlertView, 0, len(alerts))
	for _, al := range alerts {
		out = append(out, AlertView{Alert: al, AssetName: n.asset(al.AssetID), CheckName: n.check(al.CheckID)})
	}
	return out
}

// Summary is the dashboard landing view.
func (a *Aggregator) Summary(ctx context.Context) (*Summary, error) {
	now := a.Now()
	n, assets, checks, err := a.names(ctx)
	if err != nil {
		return nil, err
	}
	open, err := a.store.ListAlerts(ctx, repo.AlertFilter{OpenOnly: true})
	if err != nil {
		return nil, err
	}
	latest, err := a.store.ListAlerts(ctx, repo.AlertFilter{Limit: latestAlerts})
	if err != nil {
		return nil, err
	}
	rs, err := a.store.ResultsSince(ctx, now.Add(-Window24h), "")
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Assets:       len(assets),
		Checks:       len(checks),
		OpenAlerts:   len(open),
		Results24h:   len(rs),
		LatestAlerts: n.alertViews(latest),
		GeneratedAt:  now,
	}
	s.Uptime24h, s.AvgLatency24h = window(rs)

	type pair struct{ asset, check string }
	fails := map[pair]int{}
	cutoff := now.Add(-failingLookback)
	for _, r := range rs {
		if r.OK || r.RecordedAt.Before(cutoff) {
			continue
		}
		fails[pair{n.asset(r.AssetID), n.check(r.CheckID)}]++
	}
	s.FailingChecks = make([]FailingCheck, 0, len(fails))
	for k, v := range fails {
		s.FailingChecks = append(s.FailingChecks, FailingCheck{Asset: k.asset, Check: k.check, Fails: v})
	}
	sort.Slice(s.FailingChecks, func(i, j int) bool {
		x, y := s.FailingChecks[i], s.FailingChecks[j]
		if x.Fails != y.Fails {
			return x.Fails > y.Fails
		}
		if x.Asset != y.Asset {
			return x.Asset < y.Asset
		}
		return x.Check < y.Check
	})
	if len(s.FailingChecks) > topFailing {
		s.FailingChecks = s.FailingChecks[:topFailing]
	}

	byAsset := map[string]int{}
	for _, al := range open {
		byAsset[n.asset(al.AssetID)]++
	}
	s.TopAlertAssets = topCounts(byAsset, topAlertAssets)
	return s, nil
}

// window returns uptime (2 decimals, 100 when empty) and mean latency
// (1 decimal, 0 when no result carries one).
func window(rs []*domain.CheckResult) (uptime, latency float64) {
	var ok, lat int
	var sum float64
	for _, r := range rs {
		if r.OK {
			ok++
		}
		if r.LatencyMS != nil {
			sum += *r.LatencyMS
			lat++
		}
	}
	uptime = Round(Uptime(ok, len(rs)), 2)
	if lat > 0 {
		latency = Round(sum/float64(lat), 1)
	}
	return uptime, latency
}

func topCounts(m map[string]int, limit int) []AssetCount {
	out := make([]AssetCount, 0, len(m))
	for k, v := range m {
		out = append(out, AssetCount{Asset: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Asset < out[j].Asset
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

type AssetRow struct {
	*domain.Asset
	TagList    []string `json:"tag_list"`
	Checks     int      `json:"checks"`
	OpenAlerts int      `json:"open_alerts"`
}

type Overview struct {
	Assets   []AssetRow `json:"assets"`
	TagCloud []string   `json:"tag_cloud"`
	Query    string     `json:"q,omitempty"`
	Tag      string     `json:"tag,omitempty"`
}

// AssetOverview lists assets matching q (name, address, description or tags,
// case-insensitive) and tag (substring of tags).
func (a *Aggregator) AssetOverview(ctx context.Context, q, tag string) (*Overview, error) {
	_, assets, checks, err := a.names(ctx)
	if err != nil {
		return nil, err
	}
	open, err := a.store.ListAlerts(ctx, repo.AlertFilter{OpenOnly: true})
	if err != nil {
		return nil, err
	}
	checkCount := map[domain.AssetID]int{}
	for _, c := range checks {
		checkCount[c.AssetID]++
	}
	alertCount := map[domain.AssetID]int{}
	for _, al := range open {
		alertCount[al.AssetID]++
	}

	q, tag = strings.TrimSpace(q), strings.ToLower(strings.TrimSpace(tag))
	lq := strings.ToLower(q)
	ov := &Overview{Assets: []AssetRow{}, Query: q, Tag: tag}
	cloud := map[string]struct{}{}
	for _, x := range assets {
		for _, t := range x.TagList() {
			cloud[strings.ToLower(t)] = struct{}{}
		}
		if lq != "" && !matches(lq, x.Name, x.Address, x.Description, x.Tags) {
			continue
		}
		if tag != "" && !strings.Contains(strings.ToLower(x.Tags), tag) {
			continue
		}
		ov.Assets = append(ov.Assets, AssetRow{
			Asset:      x,
			TagList:    x.TagList(),
			Checks:     checkCount[x.ID],
			OpenAlerts: alertCount[x.ID],
		})
	}
	ov.TagCloud = make([]string, 0, len(cloud))
	for t := range cloud {
		ov.TagCloud = append(ov.TagCloud, t)
	}
	sort.Strings(ov.TagCloud)
	if len(ov.TagCloud) > tagCloudSize {
		ov.TagCloud = ov.TagCloud[:tagCloudSize]
	}
	return ov, nil
}

func matches(lq string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), lq) {
			return true
		}
	}
	return false
}

type ResultView struct {
	*domain.CheckResult
	CheckName string `json:"check_name"`
}

type Detail struct {
	Asset        *domain.Asset   `json:"asset"`
	Checks       []*domain.Check `json:"checks"`
	Uptime7d     float64         `json:"uptime_7d"`
	AvgLatency7d float64         `json:"avg_latency_7d"`
	OpenAlerts   []AlertView     `json:"open_alerts"`
	LastResults  []ResultView    `json:"last_results"`
}

// AssetDetail returns repo.ErrNotFound for an unknown asset.
func (a *Aggregator) AssetDetail(ctx context.Context, id domain.AssetID) (*Detail, error) {
	asset, err := a.store.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	checks, err := a.store.ListChecksByAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	rs, err := a.store.ResultsSince(ctx, a.Now().Add(-Window7d), id)
	if err != nil {
		return nil, err
	}
	open, err := a.store.ListAlerts(ctx, repo.AlertFilter{OpenOnly: true, AssetID: id, Limit: detailAlerts})
	if err != nil {
		return nil, err
	}
	recent, err := a.store.RecentResults(ctx, id, detailResults)
	if err != nil {
		return nil, err
	}

	n := &names{
		assets: map[domain.AssetID]*domain.Asset{asset.ID: asset},
		checks: make(map[domain.CheckID]*domain.Check, len(checks)),
	}
	for _, c := range checks {
		n.checks[c.ID] = c
	}
	if checks == nil {
		checks = []*domain.Check{}
	}
	d := &Detail{
		Asset:       asset,
		Checks:      checks,
		OpenAlerts:  n.alertViews(open),
		LastResults: make([]ResultView, 0, len(recent)),
	}
	d.Uptime7d, d.AvgLatency7d = window(rs)
	for _, r := range recent {
		d.LastResults = append(d.LastResults, ResultView{CheckResult: r, CheckName: n.check(r.CheckID)})
	}
	return d, nil
}
