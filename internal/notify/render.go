// Package notify renders message payloads into platform dialects, delivers
// them through the Discord and Telegram APIs, and fans one payload out to
// every enabled target with independent bounded retries.
package notify

import (
	"fmt"
	"strings"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

// sentimentEmoji maps the payload tag to the marker shown next to the
// headline and pnl figures on both platforms.
func sentimentEmoji(s domain.Sentiment) string {
	switch s {
	case domain.SentimentPositive:
		return "🟢"
	case domain.SentimentNegative:
		return "🔴"
	default:
		return "🟡"
	}
}

// renderDiscord renders a payload as Discord markdown. When the target has a
// mention configured, the role is pinged on the first line.
func renderDiscord(target domain.NotificationTarget, p domain.MessagePayload) string {
	var b strings.Builder

	if target.Mention != "" {
		fmt.Fprintf(&b, "<@&%s>\n\n", target.Mention)
	}
	fmt.Fprintf(&b, "## %s **%s**\n\n", sentimentEmoji(p.Sentiment), p.Title)
	if p.Headline != "" {
		fmt.Fprintf(&b, "**%s**\n\n", p.Headline)
	}
	for _, line := range p.Lines {
		fmt.Fprintf(&b, "**%s:** `%s`\n", line.Label, line.Value)
	}
	fmt.Fprintf(&b, "\n⏰ %s", p.Timestamp.Format("15:04:05"))
	if p.Note != "" {
		fmt.Fprintf(&b, "\n⚠️ *%s*", p.Note)
	}

	return b.String()
}

// renderTelegram renders a payload as Telegram HTML (parse_mode=HTML).
func renderTelegram(p domain.MessagePayload) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s <b>%s</b>\n\n", sentimentEmoji(p.Sentiment), escapeHTML(p.Title))
	if p.Headline != "" {
		fmt.Fprintf(&b, "<b>%s</b>\n\n", escapeHTML(p.Headline))
	}
	for _, line := range p.Lines {
		fmt.Fprintf(&b, "%s: <code>%s</code>\n", escapeHTML(line.Label), escapeHTML(line.Value))
	}
	fmt.Fprintf(&b, "\n⏰ %s", p.Timestamp.Format("15:04:05"))
	if p.Note != "" {
		fmt.Fprintf(&b, "\n⚠️ <i>%s</i>", escapeHTML(p.Note))
	}

	return b.String()
}

// escapeHTML covers the three characters Telegram requires escaped in HTML
// parse mode.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
