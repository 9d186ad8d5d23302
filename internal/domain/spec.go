package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindPing      Kind = "ping"
	KindTCPPort   Kind = "tcp_port"
	KindHTTP      Kind = "http"
	KindSSLExpiry Kind = "ssl_expiry"
)

// Kinds lists every kind a check can be configured with.
var Kinds = []Kind{KindPing, KindTCPPort, KindHTTP, KindSSLExpiry}

func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if k == v {
			return true
		}
	}
	return false
}

// ErrMissingPort is returned for a tcp_port check stored without a port.
var ErrMissingPort = errors.New("Missing port")

type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("Unknown kind: %s", e.Kind)
}

// Spec is the probe configuration of a check. The set of implementations is
// closed: PingSpec, TCPPortSpec, HTTPSpec and SSLExpirySpec.
type Spec interface {
	Kind() Kind
	spec()
}

type PingSpec struct{}

type TCPPortSpec struct {
	Port int
}

type HTTPSpec struct {
	ExpectedStatus int
}

type SSLExpirySpec struct {
	Port          int
	DaysThreshold int
}

func (PingSpec) Kind() Kind      { return KindPing }
func (TCPPortSpec) Kind() Kind   { return KindTCPPort }
func (HTTPSpec) Kind() Kind      { return KindHTTP }
func (SSLExpirySpec) Kind() Kind { return KindSSLExpiry }

func (PingSpec) spec()      {}
func (TCPPortSpec) spec()   {}
func (HTTPSpec) spec()      {}
func (SSLExpirySpec) spec() {}

// Spec builds the typed probe configuration from the stored check fields.
func (c Check) Spec() (Spec, error) {
	switch c.Kind {
	case KindPing:
		return PingSpec{}, nil
	case KindTCPPort:
		if c.Port == nil || *c.Port <= 0 {
			return nil, ErrMissingPort
		}
		return TCPPortSpec{Port: *c.Port}, nil
	case KindHTTP:
		want := c.ExpectedStatus
		if want == 0 {
			want = DefaultExpectedStatus
		}
		return HTTPSpec{ExpectedStatus: want}, nil
	case KindSSLExpiry:
		port := DefaultSSLPort
		if c.Port != nil && *c.Port > 0 {
			port = *c.Port
		}
		// 0 is a real threshold: fail only once the certificate has expired.
		return SSLExpirySpec{Port: port, DaysThreshold: c.SSLDaysThreshold}, nil
	default:
		return nil, &UnknownKindError{Kind: c.Kind}
	}
}
