package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubSender fails targets listed in failing until their budget runs out,
// counting every attempt per destination.
type stubSender struct {
	platform domain.Platform
	mu       sync.Mutex
	attempts map[string]int
	failing  map[string]error // destination -> error returned on every attempt
	delay    time.Duration
}

func newStubSender(platform domain.Platform) *stubSender {
	return &stubSender{
		platform: platform,
		attempts: make(map[string]int),
		failing:  make(map[string]error),
	}
}

func (s *stubSender) Send(ctx context.Context, target domain.NotificationTarget, _ domain.MessagePayload) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[target.Destination]++
	if err, ok := s.failing[target.Destination]; ok {
		return err
	}
	return nil
}

func (s *stubSender) Platform() domain.Platform { return s.platform }

func (s *stubSender) attemptCount(destination string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[destination]
}

func target(platform domain.Platform, destination string) domain.NotificationTarget {
	return domain.NotificationTarget{
		Platform:    platform,
		Name:        destination,
		Destination: destination,
		Enabled:     true,
	}
}

func fastPolicy(attempts int) domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: attempts,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func byDestination(results []domain.DeliveryResult) map[string]domain.DeliveryResult {
	out := make(map[string]domain.DeliveryResult, len(results))
	for _, r := range results {
		out[r.Target.Destination] = r
	}
	return out
}

func TestDispatchIndependentTargets(t *testing.T) {
	sender := newStubSender(domain.PlatformDiscord)
	sender.failing["bad"] = errors.New("boom")

	d := NewDispatcher([]domain.Sender{sender}, fastPolicy(3), 0, testLogger())
	results := d.Dispatch(context.Background(), domain.MessagePayload{Title: "t"}, []domain.NotificationTarget{
		target(domain.PlatformDiscord, "good"),
		target(domain.PlatformDiscord, "bad"),
	})

	require.Len(t, results, 2)
	got := byDestination(results)

	assert.True(t, got["good"].Delivered())
	assert.Equal(t, 1, got["good"].Attempts)

	assert.False(t, got["bad"].Delivered())
	assert.Equal(t, 3, got["bad"].Attempts)
	assert.Equal(t, 3, sender.attemptCount("bad"))
	// The failing target never disturbed the healthy one.
	assert.Equal(t, 1, sender.attemptCount("good"))
}

func TestDispatchSkipsDisabledTargets(t *testing.T) {
	sender := newStubSender(domain.PlatformTelegram)
	d := NewDispatcher([]domain.Sender{sender}, fastPolicy(1), 0, testLogger())

	off := target(domain.PlatformTelegram, "off")
	off.Enabled = false

	results := d.Dispatch(context.Background(), domain.MessagePayload{}, []domain.NotificationTarget{
		off,
		target(domain.PlatformTelegram, "on"),
	})
	require.Len(t, results, 1)
	assert.Equal(t, "on", results[0].Target.Destination)
	assert.Equal(t, 0, sender.attemptCount("off"))
}

func TestDispatchSkipsUnknownPlatform(t *testing.T) {
	sender := newStubSender(domain.PlatformDiscord)
	d := NewDispatcher([]domain.Sender{sender}, fastPolicy(1), 0, testLogger())

	results := d.Dispatch(context.Background(), domain.MessagePayload{}, []domain.NotificationTarget{
		target(domain.PlatformTelegram, "nobody-home"),
	})
	assert.Empty(t, results)
}

func TestDispatchPermanentErrorSkipsRetries(t *testing.T) {
	sender := newStubSender(domain.PlatformDiscord)
	sender.failing["forbidden"] = domain.ErrPermissionDenied

	d := NewDispatcher([]domain.Sender{sender}, fastPolicy(5), 0, testLogger())
	results := d.Dispatch(context.Background(), domain.MessagePayload{}, []domain.NotificationTarget{
		target(domain.PlatformDiscord, "forbidden"),
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Delivered())
	assert.True(t, errors.Is(results[0].Err, domain.ErrPermissionDenied))
	assert.Equal(t, 1, results[0].Attempts)
}

func TestDispatchTimeoutDetachesSlowTargets(t *testing.T) {
	fast := newStubSender(domain.PlatformDiscord)
	slow := newStubSender(domain.PlatformTelegram)
	slow.delay = 200 * time.Millisecond

	d := NewDispatcher([]domain.Sender{fast, slow}, fastPolicy(1), 50*time.Millisecond, testLogger())

	start := time.Now()
	results := d.Dispatch(context.Background(), domain.MessagePayload{}, []domain.NotificationTarget{
		target(domain.PlatformDiscord, "fast"),
		target(domain.PlatformTelegram, "slow"),
	})
	elapsed := time.Since(start)

	require.Len(t, results, 1)
	assert.Equal(t, "fast", results[0].Target.Destination)
	assert.Less(t, elapsed, 150*time.Millisecond)

	// The detached delivery still completes on its own.
	assert.Eventually(t, func() bool {
		return slow.attemptCount("slow") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWaitBlocksUntilDetachedDeliveriesFinish(t *testing.T) {
	slow := newStubSender(domain.PlatformDiscord)
	slow.delay = 80 * time.Millisecond

	d := NewDispatcher([]domain.Sender{slow}, fastPolicy(1), 10*time.Millisecond, testLogger())

	results := d.Dispatch(context.Background(), domain.MessagePayload{}, []domain.NotificationTarget{
		target(domain.PlatformDiscord, "slow"),
	})
	assert.Empty(t, results, "slow delivery should detach past the event timeout")
	assert.Equal(t, 0, slow.attemptCount("slow"))

	d.Wait()
	assert.Equal(t, 1, slow.attemptCount("slow"), "Wait must not return before the detached delivery terminates")
}

func TestBackoffDelay(t *testing.T) {
	policy := domain.RetryPolicy{
		BaseBackoff: time.Second,
		MaxBackoff:  10 * time.Second,
	}

	assert.Equal(t, time.Second, backoffDelay(policy, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(policy, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(policy, 3))
	assert.Equal(t, 8*time.Second, backoffDelay(policy, 4))
	assert.Equal(t, 10*time.Second, backoffDelay(policy, 5))   // capped
	assert.Equal(t, 10*time.Second, backoffDelay(policy, 64))  // shift-safe
	assert.Equal(t, time.Second, backoffDelay(policy, 0))      // clamped up
}
