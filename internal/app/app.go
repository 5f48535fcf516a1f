// Package app provides the top-level application lifecycle management for
// the position tracker. It wires together the exchange client, tracker,
// dispatcher, optional persistence, and the operator API, and supervises the
// watcher's restart loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkarpenko/futurestrack/internal/config"
	"github.com/mkarpenko/futurestrack/internal/server"
	"github.com/mkarpenko/futurestrack/internal/server/handler"
	"github.com/mkarpenko/futurestrack/internal/server/ws"
	"github.com/mkarpenko/futurestrack/internal/tracker"
	"github.com/mkarpenko/futurestrack/internal/watch"
)

// errWatcherStopped marks a clean watcher exit (operator stop) inside the
// run group.
var errWatcherStopped = errors.New("app: watcher stopped")

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the watcher
// (and the operator API when enabled), and blocks until the context is
// cancelled or the watcher stops. A watcher exit with watch.ErrRestart tears
// the run down and starts a fresh one after a short delay.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("exchange", a.cfg.Exchange.Name),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	for {
		err := a.runOnce(ctx, deps)
		if errors.Is(err, errWatcherStopped) {
			a.logger.InfoContext(ctx, "watcher stopped by operator")
			return nil
		}
		if errors.Is(err, watch.ErrRestart) {
			a.logger.InfoContext(ctx, "restarting watcher",
				slog.Duration("delay", a.cfg.Monitor.RestartDelay.Duration),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.cfg.Monitor.RestartDelay.Duration):
			}
			continue
		}
		return err
	}
}

// runOnce builds one watcher generation and runs it, together with the
// websocket hub and operator API when enabled, until any of them exits.
func (a *App) runOnce(ctx context.Context, deps *Dependencies) error {
	trk := tracker.New(deps.StateStore, a.cfg.Monitor.NoiseThreshold, a.logger)

	opts := watch.Options{
		Journal:       deps.Journal,
		ShutdownGrace: a.cfg.Monitor.ShutdownGrace.Duration,
		StartupNotice: a.cfg.Monitor.StartupNotice,
	}

	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(a.cfg.Exchange.Name, a.logger)
		opts.OnEvent = hub.Publish
	}

	watcher := watch.New(
		deps.Exchange,
		trk,
		deps.Dispatcher,
		deps.Targets,
		a.cfg.Monitor.PollInterval.Duration,
		opts,
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	// A clean stop must still tear down the server and hub goroutines, so
	// it is surfaced as a sentinel error that Run translates back to nil.
	g.Go(func() error {
		err := watcher.Run(gctx)
		if err == nil {
			return errWatcherStopped
		}
		return err
	})

	if a.cfg.Server.Enabled {
		g.Go(func() error {
			err := hub.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})

		srv := server.NewServer(
			server.Config{Port: a.cfg.Server.Port, APIKey: a.cfg.Server.APIKey},
			server.Handlers{
				Health:    handler.NewHealthHandler(watcher),
				Status:    handler.NewStatusHandler(watcher),
				Positions: handler.NewPositionsHandler(trk, a.logger),
				Events:    handler.NewEventsHandler(deps.Journal, a.logger),
				Control:   handler.NewControlHandler(watcher, a.logger),
			},
			hub,
			a.logger,
		)

		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
