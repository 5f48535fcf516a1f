package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

// Dispatcher fans one payload out to every enabled target. Each target gets
// its own goroutine and its own bounded retry sequence; one target's failure
// never blocks or affects another's delivery.
type Dispatcher struct {
	senders      map[domain.Platform]domain.Sender
	policy       domain.RetryPolicy
	eventTimeout time.Duration
	logger       *slog.Logger
	inflight     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher over the given senders. eventTimeout
// bounds how long Dispatch blocks per payload; deliveries still in flight
// when it elapses continue detached and log their outcome on completion. A
// zero eventTimeout waits for every target.
func NewDispatcher(senders []domain.Sender, policy domain.RetryPolicy, eventTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	byPlatform := make(map[domain.Platform]domain.Sender, len(senders))
	for _, s := range senders {
		byPlatform[s.Platform()] = s
	}
	return &Dispatcher{
		senders:      byPlatform,
		policy:       policy,
		eventTimeout: eventTimeout,
		logger:       logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch attempts delivery to every enabled target and returns the results
// that reached a terminal state within the per-event timeout. ctx should
// outlive the call when detached completion is wanted; cancelling it is the
// only way to abandon in-flight retries.
func (d *Dispatcher) Dispatch(ctx context.Context, payload domain.MessagePayload, targets []domain.NotificationTarget) []domain.DeliveryResult {
	active := make([]domain.NotificationTarget, 0, len(targets))
	for _, target := range targets {
		if !target.Enabled {
			continue
		}
		if _, ok := d.senders[target.Platform]; !ok {
			d.logger.WarnContext(ctx, "no sender configured for target platform",
				slog.String("platform", string(target.Platform)),
				slog.String("target", target.Name),
			)
			continue
		}
		active = append(active, target)
	}
	if len(active) == 0 {
		return nil
	}

	results := make(chan domain.DeliveryResult, len(active))
	d.inflight.Add(len(active))
	for _, target := range active {
		go func(target domain.NotificationTarget) {
			defer d.inflight.Done()
			results <- d.deliver(ctx, target, payload)
		}(target)
	}

	var timeout <-chan time.Time
	if d.eventTimeout > 0 {
		timer := time.NewTimer(d.eventTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	collected := make([]domain.DeliveryResult, 0, len(active))
	for range active {
		select {
		case res := <-results:
			collected = append(collected, res)
		case <-timeout:
			d.logger.WarnContext(ctx, "dispatch timeout elapsed, remaining deliveries continue detached",
				slog.String("title", payload.Title),
				slog.Int("pending", len(active)-len(collected)),
			)
			return collected
		}
	}
	return collected
}

// deliver runs one target's retry sequence to a terminal state and logs the
// outcome. Auth and permission failures are terminal immediately; everything
// else retries with exponential backoff up to the policy's attempt cap.
func (d *Dispatcher) deliver(ctx context.Context, target domain.NotificationTarget, payload domain.MessagePayload) domain.DeliveryResult {
	sender := d.senders[target.Platform]
	start := time.Now()

	maxAttempts := d.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		err = sender.Send(ctx, target, payload)
		if err == nil {
			d.logger.InfoContext(ctx, "notification delivered",
				slog.String("platform", string(target.Platform)),
				slog.String("target", target.Name),
				slog.String("title", payload.Title),
				slog.Int("attempts", attempt),
			)
			return domain.DeliveryResult{Target: target, Attempts: attempt, Elapsed: time.Since(start)}
		}

		if permanent(err) || attempt >= maxAttempts {
			break
		}

		delay := backoffDelay(d.policy, attempt)
		d.logger.WarnContext(ctx, "delivery failed, retrying",
			slog.String("platform", string(target.Platform)),
			slog.String("target", target.Name),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			err = ctx.Err()
			attempt = maxAttempts
		}
	}

	d.logger.ErrorContext(ctx, "delivery failed terminally",
		slog.String("platform", string(target.Platform)),
		slog.String("target", target.Name),
		slog.String("title", payload.Title),
		slog.Int("attempts", attempt),
		slog.String("error", err.Error()),
	)
	return domain.DeliveryResult{Target: target, Attempts: attempt, Err: err, Elapsed: time.Since(start)}
}

// Wait blocks until every delivery started by Dispatch, including ones that
// continued detached after the per-event timeout, has reached a terminal
// state. Cancelling the dispatch context is what bounds the wait.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// permanent reports whether a delivery error cannot heal by retrying.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrPermissionDenied) ||
		errors.Is(err, domain.ErrNotFound)
}
