package probe

import (
	"context"
	"fmt"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

func (s *Set) Ping(ctx context.Context, host string, timeout time.Duration) (Outcome, error) {
	echo := s.ping
	if echo == nil {
		echo = icmpEcho
	}
	start := time.Now()
	if err := echo(ctx, host, timeout, s.PingPrivileged); err != nil {
		return Outcome{}, err
	}
	return Outcome{Message: "Ping OK", LatencyMS: sinceMS(start)}, nil
}

// icmpEcho sends a single echo request and waits for its reply.
func icmpEcho(ctx context.Context, host string, timeout time.Duration, privileged bool) error {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return fmt.Errorf("ping %s: %w", host, err)
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	// Windows has no unprivileged ICMP datagram sockets.
	pinger.SetPrivileged(privileged || runtime.GOOS == "windows")

	if err := pinger.RunWithContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", host, err)
	}
	if st := pinger.Statistics(); st.PacketsRecv == 0 {
		return fmt.Errorf("ping %s: no echo reply within %s", host, timeout)
	}
	return nil
}
