package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var ErrNoExpiry = errors.New("No notAfter in certificate")

// SSLExpiry handshakes with host:port, verifying the server name, and checks
// how many whole days remain before the leaf certificate expires.
func (s *Set) SSLExpiry(ctx context.Context, host string, port, threshold int, timeout time.Duration) (Outcome, error) {
	cfg := &tls.Config{}
	if s.TLSConfig != nil {
		cfg = s.TLSConfig.Clone()
	}
	if net.ParseIP(host) == nil {
		cfg.ServerName = host
	}
	d := &tls.Dialer{NetDialer: &net.Dialer{Timeout: timeout}, Config: cfg}

	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return Outcome{}, err
	}
	lat := sinceMS(start)
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 || certs[0].NotAfter.IsZero() {
		return Outcome{LatencyMS: lat}, ErrNoExpiry
	}

	days := RemainingDays(certs[0].NotAfter, s.now())
	out := Outcome{LatencyMS: lat, DaysLeft: days}
	if days < threshold {
		return out, &ExpiryError{Days: days, Threshold: threshold}
	}
	out.Message = fmt.Sprintf("SSL OK (expires in %d days)", days)
	return out, nil
}

// RemainingDays counts whole days from now until notAfter, truncated toward zero.
func RemainingDays(notAfter, now time.Time) int {
	return int(notAfter.Sub(now) / (24 * time.Hour))
}

func (s *Set) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
