package domain

import "time"

// Platform identifies a messaging platform a notification target lives on.
type Platform string

const (
	PlatformDiscord  Platform = "discord"
	PlatformTelegram Platform = "telegram"
)

// NotificationTarget is one configured notification endpoint: a Discord
// channel or a Telegram chat.
type NotificationTarget struct {
	Platform    Platform
	Name        string // operator-facing label used in logs
	Destination string // channel ID or chat ID
	Mention     string // optional role/user to mention, Discord only
	Enabled     bool
}

// RetryPolicy bounds the delivery retry sequence for a single target.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DeliveryResult is the terminal outcome of one target's delivery sequence.
type DeliveryResult struct {
	Target   NotificationTarget
	Attempts int
	Err      error
	Elapsed  time.Duration
}

// Delivered reports whether the payload reached the target.
func (r DeliveryResult) Delivered() bool {
	return r.Err == nil
}
