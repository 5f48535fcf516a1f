package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FUTURESTRACK_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FUTURESTRACK_* environment variables
// and overwrites the corresponding Config fields when a variable is set.
// This lets operators inject secrets at deploy time without touching the
// TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.Name, "FUTURESTRACK_EXCHANGE_NAME")
	setStr(&cfg.Exchange.BaseURL, "FUTURESTRACK_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.ApiKey, "FUTURESTRACK_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.SecretKey, "FUTURESTRACK_EXCHANGE_SECRET_KEY")

	// ── Monitor ──
	setDuration(&cfg.Monitor.PollInterval, "FUTURESTRACK_MONITOR_POLL_INTERVAL")
	setFloat64(&cfg.Monitor.NoiseThreshold, "FUTURESTRACK_MONITOR_NOISE_THRESHOLD")
	setDuration(&cfg.Monitor.DispatchWindow, "FUTURESTRACK_MONITOR_DISPATCH_WINDOW")
	setDuration(&cfg.Monitor.ShutdownGrace, "FUTURESTRACK_MONITOR_SHUTDOWN_GRACE")
	setBool(&cfg.Monitor.StartupNotice, "FUTURESTRACK_MONITOR_STARTUP_NOTICE")
	setDuration(&cfg.Monitor.RestartDelay, "FUTURESTRACK_MONITOR_RESTART_DELAY")

	// ── Discord / Telegram ──
	setStr(&cfg.Discord.BotToken, "FUTURESTRACK_DISCORD_BOT_TOKEN")
	setStr(&cfg.Discord.ApiBase, "FUTURESTRACK_DISCORD_API_BASE")
	setStr(&cfg.Telegram.BotToken, "FUTURESTRACK_TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Telegram.ApiBase, "FUTURESTRACK_TELEGRAM_API_BASE")

	// ── Retry ──
	setInt(&cfg.Retry.MaxAttempts, "FUTURESTRACK_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Retry.BaseBackoff, "FUTURESTRACK_RETRY_BASE_BACKOFF")
	setDuration(&cfg.Retry.MaxBackoff, "FUTURESTRACK_RETRY_MAX_BACKOFF")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FUTURESTRACK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FUTURESTRACK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUTURESTRACK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUTURESTRACK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FUTURESTRACK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FUTURESTRACK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FUTURESTRACK_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "FUTURESTRACK_REDIS_KEY_PREFIX")

	// ── Journal ──
	setBool(&cfg.Journal.Enabled, "FUTURESTRACK_JOURNAL_ENABLED")
	setStr(&cfg.Journal.DSN, "FUTURESTRACK_JOURNAL_DSN")
	setStr(&cfg.Journal.Host, "FUTURESTRACK_JOURNAL_HOST")
	setInt(&cfg.Journal.Port, "FUTURESTRACK_JOURNAL_PORT")
	setStr(&cfg.Journal.Database, "FUTURESTRACK_JOURNAL_DATABASE")
	setStr(&cfg.Journal.User, "FUTURESTRACK_JOURNAL_USER")
	setStr(&cfg.Journal.Password, "FUTURESTRACK_JOURNAL_PASSWORD")
	setStr(&cfg.Journal.SSLMode, "FUTURESTRACK_JOURNAL_SSLMODE")
	setBool(&cfg.Journal.RunMigrations, "FUTURESTRACK_JOURNAL_RUN_MIGRATIONS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FUTURESTRACK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FUTURESTRACK_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "FUTURESTRACK_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "FUTURESTRACK_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
