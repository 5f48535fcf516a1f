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

const defaultDiscordAPI = "https://discord.com/api/v10"

// DiscordSender delivers payloads as channel messages through the Discord
// bot API. The target's destination is the channel ID.
type DiscordSender struct {
	apiBase  string
	botToken string
	client   *http.Client
}

// NewDiscordSender creates a DiscordSender for the given bot token. It uses
// a default HTTP client with a 10-second timeout.
func NewDiscordSender(botToken string) *DiscordSender {
	return &DiscordSender{
		apiBase:  defaultDiscordAPI,
		botToken: botToken,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// WithAPIBase overrides the Discord API base URL, for proxies and tests.
func (d *DiscordSender) WithAPIBase(base string) *DiscordSender {
	if base != "" {
		d.apiBase = strings.TrimRight(base, "/")
	}
	return d
}

// Send posts the rendered payload to the target channel.
func (d *DiscordSender) Send(ctx context.Context, target domain.NotificationTarget, payload domain.MessagePayload) error {
	body, err := json.Marshal(map[string]string{
		"content": renderDiscord(target, payload),
	})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", d.apiBase, target.Destination)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+d.botToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: channel %s: %w: status %d: %s",
			target.Destination, classifyStatus(resp.StatusCode), resp.StatusCode, string(respBody))
	}

	return nil
}

// Platform returns the platform tag this sender serves.
func (d *DiscordSender) Platform() domain.Platform {
	return domain.PlatformDiscord
}

// classifyStatus maps an HTTP status onto the delivery error taxonomy so the
// dispatcher and logs can distinguish auth problems from transient failures.
func classifyStatus(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrPermissionDenied
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case http.StatusNotFound:
		return domain.ErrNotFound
	default:
		return fmt.Errorf("unexpected status")
	}
}
