package domain

import (
	"strings"
	"time"
)

type AssetID string

type CheckID string

type AssetType string

const (
	AssetVM      AssetType = "vm"
	AssetServer  AssetType = "server"
	AssetStorage AssetType = "storage"
	AssetNetwork AssetType = "network"
	AssetOther   AssetType = "other"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// MaxMessageLen bounds CheckResult.Message.
const MaxMessageLen = 2000

const (
	DefaultIntervalSeconds  = 60
	DefaultExpectedStatus   = 200
	DefaultSSLDaysThreshold = 14
	DefaultSSLPort          = 443
)

type Asset struct {
	ID          AssetID   `json:"id"`
	Name        string    `json:"name"`
	Type        AssetType `json:"type"`
	Address     string    `json:"address"`
	Description string    `json:"description,omitempty"`
	Tags        string    `json:"tags,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// TagList splits the comma separated tags, trimming blanks.
func (a Asset) TagList() []string {
	var out []string
	for _, t := range strings.Split(a.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

type Check struct {
	ID               CheckID    `json:"id"`
	AssetID          AssetID    `json:"asset_id"`
	Name             string     `json:"name"`
	Kind             Kind       `json:"kind"`
	Target           string     `json:"target,omitempty"`
	Port             *int       `json:"port,omitempty"`
	IntervalSeconds  int        `json:"interval_seconds"`
	TimeoutSeconds   int        `json:"timeout_seconds"`
	ExpectedStatus   int        `json:"expected_status,omitempty"`
	SSLDaysThreshold int        `json:"ssl_days_threshold"`
	Enabled          bool       `json:"enabled"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Host returns the check target, falling back to the asset address.
func (c Check) Host(a Asset) string {
	if t := strings.TrimSpace(c.Target); t != "" {
		return t
	}
	return strings.TrimSpace(a.Address)
}

// Interval is the minimum spacing between two runs.
func (c Check) Interval() time.Duration {
	n := c.IntervalSeconds
	if n <= 0 {
		n = DefaultIntervalSeconds
	}
	return time.Duration(n) * time.Second
}

// Due reports whether the check should run at now. A check that never ran is due.
func (c Check) Due(now time.Time) bool {
	if c.LastRunAt == nil {
		return true
	}
	return now.Sub(*c.LastRunAt) >= c.Interval()
}

type CheckResult struct {
	ID         int64     `json:"id"`
	CheckID    CheckID   `json:"check_id"`
	AssetID    AssetID   `json:"asset_id"`
	OK         bool      `json:"ok"`
	StatusCode *int      `json:"status_code"`
	Message    string    `json:"message"`
	LatencyMS  *float64  `json:"latency_ms"`
	RecordedAt time.Time `json:"recorded_at"`
}

type Alert struct {
	ID       string     `json:"id"`
	CheckID  CheckID    `json:"check_id"`
	AssetID  AssetID    `json:"asset_id"`
	IsOpen   bool       `json:"is_open"`
	Severity Severity   `json:"severity"`
	Title    string     `json:"title"`
	Details  string     `json:"details"`
	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// Truncate cuts s to at most MaxMessageLen characters.
func Truncate(s string) string {
	if len(s) <= MaxMessageLen {
		return s
	}
	r := []rune(s)
	if len(r) <= MaxMessageLen {
		return s
	}
	return string(r[:MaxMessageLen])
}
