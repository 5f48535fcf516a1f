// Package format maps lifecycle events onto destination-agnostic message
// payloads. It is pure: no I/O, no platform dialects, no state.
package format

import (
	"fmt"
	"time"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

// Event titles mirror the alert wording operators already know from the
// previous generation of this bot.
const (
	titleOpened  = "NEW POSITION"
	titleScaled  = "POSITION INCREASED (DCA)"
	titleReduced = "POSITION REDUCED"
	titleClosed  = "POSITION CLOSED"
)

// Event turns a lifecycle event into one message payload, or nil for
// Unchanged events, which are never forwarded to dispatch.
func Event(ev domain.LifecycleEvent) *domain.MessagePayload {
	switch ev.Kind {
	case domain.EventOpened:
		return openStyle(ev, titleOpened)
	case domain.EventScaled:
		p := openStyle(ev, titleScaled)
		p.Lines = append(p.Lines, domain.PayloadLine{
			Label: "Added Size",
			Value: fmt.Sprintf("%g", ev.DeltaSize),
		})
		return p
	case domain.EventReduced:
		p := openStyle(ev, titleReduced)
		p.Lines = append(p.Lines, domain.PayloadLine{
			Label: "Removed Size",
			Value: fmt.Sprintf("%g", ev.DeltaSize),
		})
		return p
	case domain.EventClosed:
		return closedPayload(ev)
	default:
		return nil
	}
}

// Startup builds the "bot online" notice sent to every enabled target when
// the watcher starts.
func Startup(exchange string, interval time.Duration, now time.Time) domain.MessagePayload {
	return domain.MessagePayload{
		Title:     "POSITION TRACKER ONLINE",
		Headline:  "Connected & Ready",
		Sentiment: domain.SentimentNeutral,
		Lines: []domain.PayloadLine{
			{Label: "Exchange", Value: exchange},
			{Label: "Poll Interval", Value: interval.String()},
			{Label: "Status", Value: "Monitoring positions"},
		},
		Timestamp: now,
	}
}

// openStyle is the shared layout for Opened/Scaled/Reduced alerts: entry,
// mark, and current pnl of the live position.
func openStyle(ev domain.LifecycleEvent, title string) *domain.MessagePayload {
	snap := ev.Position.Last
	return &domain.MessagePayload{
		Title:     title,
		Headline:  headline(ev.Key, snap.Leverage),
		Sentiment: sentiment(snap.PnlPercent),
		Lines: []domain.PayloadLine{
			{Label: "Entry Price", Value: fmt.Sprintf("$%.4f", snap.EntryPrice)},
			{Label: "Mark Price", Value: fmt.Sprintf("$%.4f", snap.MarkPrice)},
			{Label: "PnL", Value: fmt.Sprintf("%+.2f%%", snap.PnlPercent)},
		},
		Timestamp: ev.At,
	}
}

func closedPayload(ev domain.LifecycleEvent) *domain.MessagePayload {
	pos := ev.Position
	p := &domain.MessagePayload{
		Title:     titleClosed,
		Headline:  headline(ev.Key, pos.Last.Leverage),
		Sentiment: sentiment(ev.FinalPnlPercent),
		Lines: []domain.PayloadLine{
			{Label: "Final Result", Value: fmt.Sprintf("%+.2f%%", ev.FinalPnlPercent)},
			{Label: "Max Profit", Value: fmt.Sprintf("%+.2f%%", pos.MaxProfitPercent)},
			{Label: "Max Drawdown", Value: fmt.Sprintf("%+.2f%%", pos.MaxDrawdownPercent)},
			{Label: "Duration", Value: Duration(ev.Duration)},
		},
		Timestamp: ev.At,
	}
	if !pos.OpenObserved {
		p.Note = "Tracker was offline when this position opened; duration starts at first observation."
	}
	return p
}

func headline(key domain.PositionKey, leverage int) string {
	if leverage > 0 {
		return fmt.Sprintf("%s • %s (%dx)", key.Symbol, key.Side, leverage)
	}
	return fmt.Sprintf("%s • %s", key.Symbol, key.Side)
}

// sentiment derives the payload tag from the sign of the relevant pnl
// figure, never from the event kind.
func sentiment(pnlPercent float64) domain.Sentiment {
	switch {
	case pnlPercent > 0:
		return domain.SentimentPositive
	case pnlPercent < 0:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

// Duration renders an elapsed position lifetime the way the alerts show it:
// "42s", "5m 10s", "2h 5m".
func Duration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}
