package probe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTP issues a GET (redirects followed) and expects the final status to equal want.
func (s *Set) HTTP(ctx context.Context, target string, want int) (Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, NormalizeURL(target), nil)
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	resp, err := s.Client.Do(req)
	if err != nil {
		return Outcome{}, err
	}
	lat := sinceMS(start)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	code := resp.StatusCode
	out := Outcome{LatencyMS: lat, StatusCode: &code}
	if code != want {
		return out, &StatusError{Got: code, Want: want}
	}
	out.Message = "HTTP OK"
	return out, nil
}

// NormalizeURL prepends http:// to targets without a scheme.
func NormalizeURL(target string) string {
	t := strings.TrimSpace(target)
	if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") {
		return t
	}
	return "http://" + t
}
