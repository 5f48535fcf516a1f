// Package watch runs the poll-reconcile-dispatch loop that turns exchange
// position snapshots into delivered notifications.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mkarpenko/futurestrack/internal/domain"
	"github.com/mkarpenko/futurestrack/internal/format"
	"github.com/mkarpenko/futurestrack/internal/tracker"
)

// ErrRestart is returned by Run when a restart was requested. The caller is
// expected to rebuild the watcher and run it again.
var ErrRestart = errors.New("watch: restart requested")

// State names the watcher's position in its loop.
type State string

const (
	StateIdle        State = "idle"
	StatePolling     State = "polling"
	StateReconciling State = "reconciling"
	StateDispatching State = "dispatching"
	StateStopping    State = "stopping"
	StateStopped     State = "stopped"
)

// CycleOutcome summarizes the most recently completed poll cycle.
type CycleOutcome struct {
	Cycle      uint64    `json:"cycle"`
	At         time.Time `json:"at"`
	Positions  int       `json:"positions"`
	Events     int       `json:"events"`
	Dispatched int       `json:"dispatched"`
	Error      string    `json:"error,omitempty"`
}

// Status is a point-in-time snapshot of the watcher for the operator API.
type Status struct {
	State     State         `json:"state"`
	Exchange  string        `json:"exchange"`
	StartedAt time.Time     `json:"started_at"`
	Interval  time.Duration `json:"interval"`
	LastCycle CycleOutcome  `json:"last_cycle"`
}

// Dispatcher fans one payload out to the configured targets. Wait blocks
// until every delivery handed to Dispatch, including ones that continued
// past the per-event timeout, has reached a terminal state.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload domain.MessagePayload, targets []domain.NotificationTarget) []domain.DeliveryResult
	Wait()
}

// Options carries the optional collaborators and tunables of a Watcher.
type Options struct {
	// Journal, when set, records every notifiable event. Failures are
	// logged and otherwise ignored.
	Journal domain.EventJournal

	// OnEvent, when set, is invoked synchronously for every notifiable
	// event before dispatch. Used to feed the websocket stream.
	OnEvent func(domain.LifecycleEvent)

	// ShutdownGrace bounds how long in-flight deliveries may run after
	// the run context is cancelled. Zero means cut off immediately.
	ShutdownGrace time.Duration

	// StartupNotice sends an "online" message to all targets when the
	// loop starts.
	StartupNotice bool
}

// Watcher drives the poll loop: fetch snapshots, reconcile them into
// lifecycle events, and dispatch the notifiable ones. Cycles never overlap;
// a tick that fires while a cycle is still running is skipped.
type Watcher struct {
	exchange   domain.ExchangeClient
	tracker    *tracker.Tracker
	dispatcher Dispatcher
	targets    []domain.NotificationTarget
	interval   time.Duration
	opts       Options
	logger     *slog.Logger

	stopCh    chan struct{}
	restartCh chan struct{}

	mu        sync.RWMutex
	state     State
	startedAt time.Time
	lastCycle CycleOutcome
}

// New creates a watcher. interval must be positive.
func New(exchange domain.ExchangeClient, trk *tracker.Tracker, dispatcher Dispatcher, targets []domain.NotificationTarget, interval time.Duration, opts Options, logger *slog.Logger) *Watcher {
	return &Watcher{
		exchange:   exchange,
		tracker:    trk,
		dispatcher: dispatcher,
		targets:    targets,
		interval:   interval,
		opts:       opts,
		logger:     logger.With(slog.String("component", "watcher")),
		stopCh:     make(chan struct{}, 1),
		restartCh:  make(chan struct{}, 1),
	}
}

// Run executes the poll loop until the context is cancelled, Stop or Restart
// is called, or the exchange reports a fatal error. The first cycle runs
// immediately rather than waiting a full interval.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	w.state = StateIdle
	w.startedAt = time.Now().UTC()
	w.mu.Unlock()

	defer w.setState(StateStopped)

	// Deliveries started before shutdown get a grace window to finish
	// instead of being cancelled with the run context. Run blocks on exit
	// until they reach a terminal state or the window elapses.
	sendCtx, cancelSend := context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		if w.opts.ShutdownGrace <= 0 {
			cancelSend()
			w.dispatcher.Wait()
			return
		}
		deadline := time.AfterFunc(w.opts.ShutdownGrace, cancelSend)
		w.dispatcher.Wait()
		deadline.Stop()
		cancelSend()
	}()

	w.logger.InfoContext(ctx, "watcher started",
		slog.String("exchange", w.exchange.Name()),
		slog.Duration("interval", w.interval),
		slog.Int("targets", len(w.targets)),
	)

	if w.opts.StartupNotice {
		payload := format.Startup(w.exchange.Name(), w.interval, time.Now().UTC())
		w.dispatcher.Dispatch(sendCtx, payload, w.targets)
	}

	if err := w.runCycle(ctx, sendCtx); err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.setState(StateStopping)
			w.logger.Info("watcher stopping", slog.String("reason", "context cancelled"))
			return ctx.Err()
		case <-w.stopCh:
			w.setState(StateStopping)
			w.logger.Info("watcher stopping", slog.String("reason", "stop requested"))
			return nil
		case <-w.restartCh:
			w.setState(StateStopping)
			w.logger.Info("watcher stopping", slog.String("reason", "restart requested"))
			return ErrRestart
		case <-ticker.C:
			if err := w.runCycle(ctx, sendCtx); err != nil {
				return err
			}
			// A tick that queued while the cycle ran is skipped, so an
			// overrun cycle is followed by a fresh interval rather than
			// an immediate back-to-back cycle.
			select {
			case <-ticker.C:
				w.logger.Warn("poll cycle overran interval, skipping next cycle")
			default:
			}
		}
	}
}

// Stop asks the loop to exit cleanly after the current cycle.
func (w *Watcher) Stop() {
	select {
	case w.stopCh <- struct{}{}:
	default:
	}
}

// Restart asks the loop to exit with ErrRestart after the current cycle.
func (w *Watcher) Restart() {
	select {
	case w.restartCh <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the watcher's state for the operator API.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Status{
		State:     w.state,
		Exchange:  w.exchange.Name(),
		StartedAt: w.startedAt,
		Interval:  w.interval,
		LastCycle: w.lastCycle,
	}
}

// runCycle performs one fetch-reconcile-dispatch pass. A transient fetch or
// reconcile failure skips the cycle and keeps the tracked state for the next
// one; a fatal fetch error stops the watcher.
func (w *Watcher) runCycle(ctx context.Context, sendCtx context.Context) error {
	outcome := CycleOutcome{At: time.Now().UTC()}

	w.setState(StatePolling)
	snapshots, err := w.exchange.FetchPositions(ctx)
	if err != nil {
		if domain.IsFatalFetch(err) {
			w.setState(StateStopping)
			outcome.Error = err.Error()
			w.finishCycle(outcome)
			w.logger.ErrorContext(ctx, "fatal exchange error, stopping",
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("fetching positions: %w", err)
		}
		w.logger.WarnContext(ctx, "fetch failed, skipping cycle",
			slog.String("error", err.Error()),
		)
		outcome.Error = err.Error()
		w.finishCycle(outcome)
		return nil
	}
	outcome.Positions = len(snapshots)

	w.setState(StateReconciling)
	events, err := w.tracker.Reconcile(ctx, snapshots)
	if err != nil {
		w.logger.WarnContext(ctx, "reconcile failed, skipping cycle",
			slog.String("error", err.Error()),
		)
		outcome.Error = err.Error()
		w.finishCycle(outcome)
		return nil
	}
	outcome.Cycle = w.tracker.Cycle()

	w.setState(StateDispatching)
	for _, ev := range events {
		if !ev.Notifiable() {
			continue
		}
		outcome.Events++
		w.record(ctx, ev)

		payload := format.Event(ev)
		if payload == nil {
			continue
		}
		results := w.dispatcher.Dispatch(sendCtx, *payload, w.targets)
		for _, res := range results {
			if res.Delivered() {
				outcome.Dispatched++
			}
		}
	}

	w.setState(StateIdle)
	w.finishCycle(outcome)

	w.logger.InfoContext(ctx, "cycle complete",
		slog.Uint64("cycle", outcome.Cycle),
		slog.Int("positions", outcome.Positions),
		slog.Int("events", outcome.Events),
		slog.Int("dispatched", outcome.Dispatched),
	)
	return nil
}

// record appends the event to the journal and feeds the event stream. Both
// are best-effort.
func (w *Watcher) record(ctx context.Context, ev domain.LifecycleEvent) {
	if w.opts.Journal != nil {
		if err := w.opts.Journal.Append(ctx, ev); err != nil {
			w.logger.WarnContext(ctx, "journal append failed",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if w.opts.OnEvent != nil {
		w.opts.OnEvent(ev)
	}
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Watcher) finishCycle(outcome CycleOutcome) {
	w.mu.Lock()
	w.lastCycle = outcome
	w.mu.Unlock()
}
