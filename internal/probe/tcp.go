package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// TCP measures the time to establish a connection to host:port.
func TCP(ctx context.Context, host string, port int, timeout time.Duration) (Outcome, error) {
	d := &net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return Outcome{}, err
	}
	lat := sinceMS(start)
	_ = conn.Close()
	return Outcome{Message: fmt.Sprintf("TCP %d OK", port), LatencyMS: lat}, nil
}
