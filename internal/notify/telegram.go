package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramSender delivers payloads through the Telegram Bot API sendMessage
// call. The target's destination is the chat ID.
type TelegramSender struct {
	apiBase  string
	botToken string
	client   *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token. It
// uses a default HTTP client with a 10-second timeout.
func NewTelegramSender(botToken string) *TelegramSender {
	return &TelegramSender{
		apiBase:  defaultTelegramAPI,
		botToken: botToken,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// WithAPIBase overrides the Telegram API base URL, for proxies and tests.
func (t *TelegramSender) WithAPIBase(base string) *TelegramSender {
	if base != "" {
		t.apiBase = strings.TrimRight(base, "/")
	}
	return t
}

// Send posts the rendered payload to the target chat using HTML parse mode.
func (t *TelegramSender) Send(ctx context.Context, target domain.NotificationTarget, payload domain.MessagePayload) error {
	body, err := json.Marshal(map[string]string{
		"chat_id":    target.Destination,
		"text":       renderTelegram(payload),
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: chat %s: %w: status %d: %s",
			target.Destination, classifyStatus(resp.StatusCode), resp.StatusCode, string(respBody))
	}

	return nil
}

// Platform returns the platform tag this sender serves.
func (t *TelegramSender) Platform() domain.Platform {
	return domain.PlatformTelegram
}
