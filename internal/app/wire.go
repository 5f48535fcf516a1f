package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkarpenko/futurestrack/internal/cache/redis"
	"github.com/mkarpenko/futurestrack/internal/config"
	"github.com/mkarpenko/futurestrack/internal/domain"
	"github.com/mkarpenko/futurestrack/internal/notify"
	"github.com/mkarpenko/futurestrack/internal/platform/mexc"
	"github.com/mkarpenko/futurestrack/internal/store/postgres"
	"github.com/mkarpenko/futurestrack/internal/tracker"
)

// Dependencies bundles every dependency the watcher run loop needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Exchange   domain.ExchangeClient
	StateStore domain.PositionStateStore
	Journal    domain.EventJournal
	Dispatcher *notify.Dispatcher
	Targets    []domain.NotificationTarget
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Exchange client ---
	switch cfg.Exchange.Name {
	case "mexc":
		deps.Exchange = mexc.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.ApiKey, cfg.Exchange.SecretKey)
	default:
		return nil, nil, fmt.Errorf("wire: unsupported exchange %q", cfg.Exchange.Name)
	}

	// --- Position state store (Redis when enabled, in-memory otherwise) ---
	if cfg.Redis.Enabled {
		store, err := redis.NewPositionStore(ctx, redis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		deps.StateStore = store
	} else {
		deps.StateStore = tracker.NewMemoryStore()
	}

	// --- Event journal (optional) ---
	if cfg.Journal.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Journal.DSN,
			Host:     cfg.Journal.Host,
			Port:     cfg.Journal.Port,
			Database: cfg.Journal.Database,
			User:     cfg.Journal.User,
			Password: cfg.Journal.Password,
			SSLMode:  cfg.Journal.SSLMode,
			MaxConns: cfg.Journal.PoolMaxConns,
			MinConns: cfg.Journal.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		journal := postgres.NewEventJournal(pgClient.Pool())
		if cfg.Journal.RunMigrations {
			if err := journal.EnsureSchema(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: journal schema: %w", err)
			}
		}
		deps.Journal = journal
	}

	// --- Notification senders ---
	var senders []domain.Sender
	if cfg.Discord.BotToken != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Discord.BotToken).WithAPIBase(cfg.Discord.ApiBase))
	}
	if cfg.Telegram.BotToken != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Telegram.BotToken).WithAPIBase(cfg.Telegram.ApiBase))
	}

	deps.Dispatcher = notify.NewDispatcher(
		senders,
		cfg.RetryPolicy(),
		cfg.Monitor.DispatchWindow.Duration,
		logger,
	)
	deps.Targets = cfg.Targets()

	return deps, cleanup, nil
}
