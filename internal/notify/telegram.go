package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

type Telegram struct {
	Token   string
	ChatID  string
	BaseURL string
	Client  *http.Client
}

// NewTelegram returns nil unless both token and chat are set.
func NewTelegram(token, chatID string) *Telegram {
	if token == "" || chatID == "" {
		return nil
	}
	return &Telegram{
		Token:   token,
		ChatID:  chatID,
		BaseURL: telegramAPI,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *Telegram) Send(ctx context.Context, subject, body string) error {
	if t == nil || t.Token == "" || t.ChatID == "" {
		return fmt.Errorf("telegram token and chat_id are required")
	}
	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = telegramAPI
	}
	code, err := postJSON(ctx, t.Client, base+"/bot"+t.Token+"/sendMessage", telegramMessage{
		ChatID:    t.ChatID,
		Text:      "<b>" + html.EscapeString(subject) + "</b>\n\n" + html.EscapeString(body),
		ParseMode: "HTML",
	})
	if err != nil {
		// the URL carries the token; keep it out of logs
		return fmt.Errorf("telegram sendMessage failed: %w", redact(err, t.Token))
	}
	if code != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", code)
	}
	return nil
}
