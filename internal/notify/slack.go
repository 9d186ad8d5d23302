package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Slack struct {
	Webhook string
	// Username overrides the webhook's default bot name when set.
	Username string
	Client   *http.Client
}

// NewSlack returns nil when webhook is empty so the caller can skip it.
func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
}

func (s *Slack) Send(ctx context.Context, subject, body string) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	code, err := postJSON(ctx, s.Client, s.Webhook, slackPayload{
		Text:     "*" + subject + "*\n" + body,
		Username: s.Username,
	})
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	if code/100 != 2 {
		return fmt.Errorf("slack webhook returned status %d", code)
	}
	return nil
}
