package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarpenko/futurestrack/internal/domain"
	"github.com/mkarpenko/futurestrack/internal/tracker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubExchange serves a scripted sequence of fetch results, repeating the
// last one once the script runs out.
type stubExchange struct {
	mu      sync.Mutex
	script  []fetchResult
	fetches int
	starts  []time.Time
}

type fetchResult struct {
	snapshots []domain.PositionSnapshot
	err       error
	delay     time.Duration
}

func (s *stubExchange) FetchPositions(_ context.Context) ([]domain.PositionSnapshot, error) {
	s.mu.Lock()
	idx := s.fetches
	s.fetches++
	s.starts = append(s.starts, time.Now())
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	res := s.script[idx]
	s.mu.Unlock()
	if res.delay > 0 {
		time.Sleep(res.delay)
	}
	return res.snapshots, res.err
}

func (s *stubExchange) Name() string { return "stub" }

func (s *stubExchange) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *stubExchange) startTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.starts))
	copy(out, s.starts)
	return out
}

// stubDispatcher records every payload it is handed. A non-zero holdFor
// simulates an in-flight delivery that finishes after that long, or earlier
// if the dispatch context is cancelled first.
type stubDispatcher struct {
	mu       sync.Mutex
	payloads []domain.MessagePayload
	holdFor  time.Duration
	cutOff   bool
	wg       sync.WaitGroup
}

func (d *stubDispatcher) Dispatch(ctx context.Context, payload domain.MessagePayload, targets []domain.NotificationTarget) []domain.DeliveryResult {
	d.mu.Lock()
	d.payloads = append(d.payloads, payload)
	d.mu.Unlock()
	if d.holdFor > 0 {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			select {
			case <-time.After(d.holdFor):
			case <-ctx.Done():
				d.mu.Lock()
				d.cutOff = true
				d.mu.Unlock()
			}
		}()
	}
	results := make([]domain.DeliveryResult, len(targets))
	for i, tgt := range targets {
		results[i] = domain.DeliveryResult{Target: tgt, Attempts: 1}
	}
	return results
}

func (d *stubDispatcher) Wait() { d.wg.Wait() }

func (d *stubDispatcher) wasCutOff() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cutOff
}

func (d *stubDispatcher) titles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.payloads))
	for i, p := range d.payloads {
		out[i] = p.Title
	}
	return out
}

type memoryJournal struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
}

func (j *memoryJournal) Append(_ context.Context, ev domain.LifecycleEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return nil
}

func (j *memoryJournal) ListRecent(_ context.Context, limit int) ([]domain.LifecycleEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit > len(j.events) {
		limit = len(j.events)
	}
	return j.events[len(j.events)-limit:], nil
}

func snap(symbol string, side domain.Side, size, pnl float64) domain.PositionSnapshot {
	return domain.PositionSnapshot{
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		EntryPrice: 100,
		MarkPrice:  100 + pnl/10,
		Leverage:   10,
		PnlPercent: pnl,
		ObservedAt: time.Now().UTC(),
	}
}

func newTestWatcher(t *testing.T, exchange *stubExchange, opts Options) (*Watcher, *stubDispatcher) {
	t.Helper()
	trk := tracker.New(tracker.NewMemoryStore(), 0.0001, testLogger())
	dispatcher := &stubDispatcher{}
	targets := []domain.NotificationTarget{
		{Platform: domain.PlatformDiscord, Name: "main", Destination: "1", Enabled: true},
	}
	w := New(exchange, trk, dispatcher, targets, 10*time.Millisecond, opts, testLogger())
	return w, dispatcher
}

func TestRunFirstCycleIsImmediate(t *testing.T) {
	exchange := &stubExchange{script: []fetchResult{
		{snapshots: []domain.PositionSnapshot{snap("BTC_USDT", domain.SideLong, 1, 2)}},
	}}
	w, dispatcher := newTestWatcher(t, exchange, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return len(dispatcher.titles()) >= 1
	}, time.Second, 5*time.Millisecond, "opened event should be dispatched without waiting an interval")

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"NEW POSITION"}, dispatcher.titles()[:1])
}

func TestRunStopsOnFatalFetchError(t *testing.T) {
	exchange := &stubExchange{script: []fetchResult{
		{err: fmt.Errorf("open positions: %w", domain.ErrUnauthorized)},
	}}
	w, dispatcher := newTestWatcher(t, exchange, Options{})

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, dispatcher.titles())
	assert.Equal(t, StateStopped, w.Status().State)
}

func TestRunTransientErrorSkipsCycle(t *testing.T) {
	exchange := &stubExchange{script: []fetchResult{
		{snapshots: []domain.PositionSnapshot{snap("BTC_USDT", domain.SideLong, 1, 2)}},
		{err: errors.New("connection reset")},
		{snapshots: nil}, // position gone: must classify against pre-error state
	}}
	w, dispatcher := newTestWatcher(t, exchange, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool {
		titles := dispatcher.titles()
		return len(titles) >= 2 && titles[len(titles)-1] == "POSITION CLOSED"
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	titles := dispatcher.titles()
	assert.Equal(t, "NEW POSITION", titles[0])
	assert.Equal(t, "POSITION CLOSED", titles[1], "transient error must not be treated as all positions closed")
}

func TestStopExitsCleanly(t *testing.T) {
	exchange := &stubExchange{script: []fetchResult{{snapshots: nil}}}
	w, _ := newTestWatcher(t, exchange, Options{})

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	assert.Eventually(t, func() bool { return exchange.fetchCount() >= 1 }, time.Second, 5*time.Millisecond)
	w.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.Equal(t, StateStopped, w.Status().State)
}

func TestRestartReturnsErrRestart(t *testing.T) {
	exchange := &stubExchange{script: []fetchResult{{snapshots: nil}}}
	w, _ := newTestWatcher(t, exchange, Options{})

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	assert.Eventually(t, func() bool { return exchange.fetchCount() >= 1 }, time.Second, 5*time.Millisecond)
	w.Restart()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRestart)
	case <-time.After(time.Second):
		t.Fatal("watcher did not restart")
	}
}

func TestStartupNoticeDispatchedFirst(t *testing.T) {
	exchange := &stubExchange{script: []fetchResult{{snapshots: nil}}}
	w, dispatcher := newTestWatcher(t, exchange, Options{StartupNotice: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(dispatcher.titles()) >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "POSITION TRACKER ONLINE", dispatcher.titles()[0])
}

func TestEventsAreJournaled(t *testing.T) {
	exchange := &stubExchange{script: []fetchResult{
		{snapshots: []domain.PositionSnapshot{snap("ETH_USDT", domain.SideShort, 3, -1)}},
	}}
	journal := &memoryJournal{}
	w, _ := newTestWatcher(t, exchange, Options{Journal: journal})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool {
		journal.mu.Lock()
		defer journal.mu.Unlock()
		return len(journal.events) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Len(t, journal.events, 1)
	assert.Equal(t, domain.EventOpened, journal.events[0].Kind)
	assert.Equal(t, "ETH_USDT", journal.events[0].Key.Symbol)
}

func TestShutdownGraceLetsInFlightSendsFinish(t *testing.T) {
	exchange := &stubExchange{script: []fetchResult{
		{snapshots: []domain.PositionSnapshot{snap("BTC_USDT", domain.SideLong, 1, 2)}},
	}}
	w, dispatcher := newTestWatcher(t, exchange, Options{ShutdownGrace: 500 * time.Millisecond})
	dispatcher.holdFor = 60 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(dispatcher.titles()) >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.False(t, dispatcher.wasCutOff(), "delivery in flight at shutdown must be allowed to finish inside the grace window")
}

func TestZeroShutdownGraceCutsOffInFlightSends(t *testing.T) {
	exchange := &stubExchange{script: []fetchResult{
		{snapshots: []domain.PositionSnapshot{snap("BTC_USDT", domain.SideLong, 1, 2)}},
	}}
	w, dispatcher := newTestWatcher(t, exchange, Options{})
	dispatcher.holdFor = 3 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(dispatcher.titles()) >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop promptly with zero grace")
	}
	assert.True(t, dispatcher.wasCutOff(), "zero grace must cancel in-flight deliveries immediately")
}

func TestOverrunCycleSkipsQueuedTick(t *testing.T) {
	exchange := &stubExchange{script: []fetchResult{
		{snapshots: nil},
		{snapshots: nil, delay: 60 * time.Millisecond},
		{snapshots: nil},
	}}
	trk := tracker.New(tracker.NewMemoryStore(), 0.0001, testLogger())
	w := New(exchange, trk, &stubDispatcher{}, nil, 50*time.Millisecond, Options{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return exchange.fetchCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	starts := exchange.startTimes()
	require.GreaterOrEqual(t, len(starts), 3)
	gap := starts[2].Sub(starts[1])
	assert.GreaterOrEqual(t, gap, 90*time.Millisecond,
		"cycle after an overrun must wait for a fresh interval instead of running the queued tick back-to-back")
}

func TestFatalErrorPassesThroughStoppingState(t *testing.T) {
	exchange := &stubExchange{script: []fetchResult{
		{err: fmt.Errorf("open positions: %w", domain.ErrUnauthorized)},
	}}
	w, dispatcher := newTestWatcher(t, exchange, Options{
		ShutdownGrace: time.Second,
		StartupNotice: true,
	})
	dispatcher.holdFor = 150 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	assert.Eventually(t, func() bool { return w.Status().State == StateStopping }, time.Second, 5*time.Millisecond,
		"status must show stopping while the shutdown drain runs")

	err := <-done
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, StateStopped, w.Status().State)
	assert.Contains(t, w.Status().LastCycle.Error, "unauthorized")
}

func TestStatusReportsLastCycle(t *testing.T) {
	exchange := &stubExchange{script: []fetchResult{
		{snapshots: []domain.PositionSnapshot{snap("BTC_USDT", domain.SideLong, 1, 2)}},
	}}
	w, _ := newTestWatcher(t, exchange, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return w.Status().LastCycle.Cycle == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	st := w.Status()
	assert.Equal(t, "stub", st.Exchange)
	assert.Equal(t, 10*time.Millisecond, st.Interval)
	assert.Equal(t, 1, st.LastCycle.Positions)
	assert.Equal(t, 1, st.LastCycle.Events)
	assert.Equal(t, 1, st.LastCycle.Dispatched)
	assert.Empty(t, st.LastCycle.Error)
}
