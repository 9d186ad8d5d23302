// Package notify delivers alert notifications. Every Notifier may fail; callers
// decide what a failure means.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// Multi fans out to every non-nil notifier and combines their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, subject, body string) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, subject, body))
	}
	return err
}

// Log writes notifications to the structured log. It never fails.
type Log struct {
	L *zap.Logger
}

func (l Log) Send(_ context.Context, subject, body string) error {
	l.L.Info("notification", zap.String("subject", subject), zap.String("body", body))
	return nil
}

// Nop drops notifications.
type Nop struct{}

func (Nop) Send(context.Context, string, string) error { return nil }

// postJSON sends payload and returns the response status. The body is drained
// so the connection can be reused.
func postJSON(ctx context.Context, c *http.Client, url string, payload any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return resp.StatusCode, nil
}

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), secret, "***"))
}
