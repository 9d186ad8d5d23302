package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hamed0406/infrawatch/internal/domain"
)

// Outcome is what a probe measured. LatencyMS is nil when the probe failed
// before timing could complete.
type Outcome struct {
	Message    string
	LatencyMS  *float64
	StatusCode *int
	DaysLeft   int
}

// Prober runs one probe against host.
type Prober interface {
	Probe(ctx context.Context, host string, spec domain.Spec, timeout time.Duration) (Outcome, error)
}

// Set is the default Prober covering every domain.Spec variant.
type Set struct {
	Client         *http.Client
	TLSConfig      *tls.Config
	PingPrivileged bool
	Now            func() time.Time

	ping func(ctx context.Context, host string, timeout time.Duration, privileged bool) error
}

func NewSet(pingPrivileged bool) *Set {
	return &Set{
		Client:         NewHTTPClient(),
		PingPrivileged: pingPrivileged,
		Now:            time.Now,
		ping:           icmpEcho,
	}
}

func (s *Set) Probe(ctx context.Context, host string, spec domain.Spec, timeout time.Duration) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch sp := spec.(type) {
	case domain.PingSpec:
		return s.Ping(ctx, host, timeout)
	case domain.TCPPortSpec:
		return TCP(ctx, host, sp.Port, timeout)
	case domain.HTTPSpec:
		return s.HTTP(ctx, host, sp.ExpectedStatus)
	case domain.SSLExpirySpec:
		return s.SSLExpiry(ctx, host, sp.Port, sp.DaysThreshold, timeout)
	default:
		return Outcome{}, fmt.Errorf("unsupported spec %T", spec)
	}
}

// NewHTTPClient dials a fresh connection per request, so every http run pays
// and measures its own connect time and no idle sockets are kept to targets.
func NewHTTPClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DisableKeepAlives = true
	return &http.Client{Transport: tr}
}

// StatusError is an HTTP response with an unexpected status.
type StatusError struct {
	Got, Want int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d (expected %d)", e.Got, e.Want)
}

// ExpiryError is a certificate that expires sooner than the threshold.
type ExpiryError struct {
	Days, Threshold int
}

func (e *ExpiryError) Error() string {
	return fmt.Sprintf("SSL expires in %d days (threshold %d)", e.Days, e.Threshold)
}

const (
	ClassConfig   = "config"
	ClassNetwork  = "network"
	ClassSemantic = "semantic"
)

// Classify maps a probe or spec error to its failure class.
func Classify(err error) string {
	var (
		uk *domain.UnknownKindError
		se *StatusError
		ee *ExpiryError
	)
	switch {
	case errors.Is(err, domain.ErrMissingPort), errors.As(err, &uk):
		return ClassConfig
	case errors.As(err, &se), errors.As(err, &ee):
		return ClassSemantic
	default:
		return ClassNetwork
	}
}

func sinceMS(start time.Time) *float64 {
	ms := time.Since(start).Seconds() * 1000
	return &ms
}
