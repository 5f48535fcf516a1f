// Package config defines the top-level configuration for the position
// tracker and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FUTURESTRACK_* environment
// variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Discord  DiscordConfig  `toml:"discord"`
	Telegram TelegramConfig `toml:"telegram"`
	Retry    RetryConfig    `toml:"retry"`
	Redis    RedisConfig    `toml:"redis"`
	Journal  JournalConfig  `toml:"journal"`
	Server   ServerConfig   `toml:"server"`
	LogLevel string         `toml:"log_level"`
}

// ExchangeConfig holds futures exchange API credentials and endpoints.
type ExchangeConfig struct {
	Name      string `toml:"name"`
	BaseURL   string `toml:"base_url"`
	ApiKey    string `toml:"api_key"`
	SecretKey string `toml:"secret_key"`
}

// MonitorConfig holds the poll loop parameters.
type MonitorConfig struct {
	PollInterval   duration `toml:"poll_interval"`
	NoiseThreshold float64  `toml:"noise_threshold"`
	DispatchWindow duration `toml:"dispatch_window"`
	ShutdownGrace  duration `toml:"shutdown_grace"`
	StartupNotice  bool     `toml:"startup_notice"`
	RestartDelay   duration `toml:"restart_delay"`
}

// DiscordChannel is one Discord destination for alerts. MentionRole, when
// set, prefixes messages with a role mention.
type DiscordChannel struct {
	Name        string `toml:"name"`
	ChannelID   string `toml:"channel_id"`
	MentionRole string `toml:"mention_role"`
	Enabled     bool   `toml:"enabled"`
}

// DiscordConfig holds Discord bot credentials and destinations.
type DiscordConfig struct {
	BotToken string           `toml:"bot_token"`
	ApiBase  string           `toml:"api_base"`
	Channels []DiscordChannel `toml:"channels"`
}

// TelegramChat is one Telegram destination for alerts.
type TelegramChat struct {
	Name    string `toml:"name"`
	ChatID  string `toml:"chat_id"`
	Enabled bool   `toml:"enabled"`
}

// TelegramConfig holds Telegram bot credentials and destinations.
type TelegramConfig struct {
	BotToken string         `toml:"bot_token"`
	ApiBase  string         `toml:"api_base"`
	Chats    []TelegramChat `toml:"chats"`
}

// RetryConfig holds the per-target delivery retry policy.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseBackoff duration `toml:"base_backoff"`
	MaxBackoff  duration `toml:"max_backoff"`
}

// RedisConfig holds Redis connection parameters for the persistent position
// state store. When disabled, tracked state lives in memory only.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// JournalConfig holds PostgreSQL connection parameters for the lifecycle
// event journal.
type JournalConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ServerConfig holds the operator API server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "30s" or "5m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			Name:    "mexc",
			BaseURL: "https://contract.mexc.com",
		},
		Monitor: MonitorConfig{
			PollInterval:   duration{30 * time.Second},
			NoiseThreshold: 0.0001,
			DispatchWindow: duration{45 * time.Second},
			ShutdownGrace:  duration{10 * time.Second},
			StartupNotice:  true,
			RestartDelay:   duration{3 * time.Second},
		},
		Discord: DiscordConfig{
			ApiBase: "https://discord.com/api/v10",
		},
		Telegram: TelegramConfig{
			ApiBase: "https://api.telegram.org",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseBackoff: duration{2 * time.Second},
			MaxBackoff:  duration{30 * time.Second},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "futurestrack",
		},
		Journal: JournalConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "futurestrack",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Enabled: false,
			Port:    8080,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for errors. It collects every problem
// found rather than stopping at the first one.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Exchange.Name == "" {
		errs = append(errs, "exchange: name must not be empty")
	}
	if c.Exchange.ApiKey == "" {
		errs = append(errs, "exchange: api_key must not be empty")
	}
	if c.Exchange.SecretKey == "" {
		errs = append(errs, "exchange: secret_key must not be empty")
	}

	if c.Monitor.PollInterval.Duration <= 0 {
		errs = append(errs, "monitor: poll_interval must be positive")
	}
	if c.Monitor.NoiseThreshold < 0 {
		errs = append(errs, "monitor: noise_threshold must not be negative")
	}
	if c.Monitor.DispatchWindow.Duration < 0 {
		errs = append(errs, "monitor: dispatch_window must not be negative")
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry: max_attempts must be at least 1")
	}
	if c.Retry.BaseBackoff.Duration <= 0 {
		errs = append(errs, "retry: base_backoff must be positive")
	}
	if c.Retry.MaxBackoff.Duration < c.Retry.BaseBackoff.Duration {
		errs = append(errs, "retry: max_backoff must not be smaller than base_backoff")
	}

	enabledTargets := 0
	for i, ch := range c.Discord.Channels {
		if ch.Enabled {
			enabledTargets++
			if ch.ChannelID == "" {
				errs = append(errs, fmt.Sprintf("discord: channels[%d]: channel_id must not be empty", i))
			}
		}
	}
	if len(c.Discord.Channels) > 0 && c.Discord.BotToken == "" {
		for _, ch := range c.Discord.Channels {
			if ch.Enabled {
				errs = append(errs, "discord: bot_token is required when channels are enabled")
				break
			}
		}
	}

	for i, chat := range c.Telegram.Chats {
		if chat.Enabled {
			enabledTargets++
			if chat.ChatID == "" {
				errs = append(errs, fmt.Sprintf("telegram: chats[%d]: chat_id must not be empty", i))
			}
		}
	}
	if len(c.Telegram.Chats) > 0 && c.Telegram.BotToken == "" {
		for _, chat := range c.Telegram.Chats {
			if chat.Enabled {
				errs = append(errs, "telegram: bot_token is required when chats are enabled")
				break
			}
		}
	}

	if enabledTargets == 0 {
		errs = append(errs, "at least one discord channel or telegram chat must be enabled")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	if c.Journal.Enabled && strings.TrimSpace(c.Journal.DSN) == "" {
		if c.Journal.Host == "" {
			errs = append(errs, "journal: host must not be empty (or set journal.dsn)")
		}
		if c.Journal.Port <= 0 || c.Journal.Port > 65535 {
			errs = append(errs, fmt.Sprintf("journal: port %d out of range", c.Journal.Port))
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Targets flattens the Discord and Telegram destinations into the
// notification target list handed to the dispatcher. Disabled entries are
// kept so the dispatcher can log that they were skipped.
func (c *Config) Targets() []domain.NotificationTarget {
	targets := make([]domain.NotificationTarget, 0, len(c.Discord.Channels)+len(c.Telegram.Chats))
	for _, ch := range c.Discord.Channels {
		targets = append(targets, domain.NotificationTarget{
			Platform:    domain.PlatformDiscord,
			Name:        ch.Name,
			Destination: ch.ChannelID,
			Mention:     ch.MentionRole,
			Enabled:     ch.Enabled,
		})
	}
	for _, chat := range c.Telegram.Chats {
		targets = append(targets, domain.NotificationTarget{
			Platform:    domain.PlatformTelegram,
			Name:        chat.Name,
			Destination: chat.ChatID,
			Enabled:     chat.Enabled,
		})
	}
	return targets
}

// RetryPolicy converts the retry section into the domain policy.
func (c *Config) RetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseBackoff: c.Retry.BaseBackoff.Duration,
		MaxBackoff:  c.Retry.MaxBackoff.Duration,
	}
}
