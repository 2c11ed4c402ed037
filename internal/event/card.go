package event

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// PrettyDate renders a start time for cards and replies,
// e.g. "March 22, 2025, at 19:00 CET".
func PrettyDate(t time.Time) string {
	return t.Format("January 2, 2006, at 15:04 MST")
}

// PrettyDuration renders a duration in whole days, hours and minutes,
// e.g. "1 day, 2 hours and 30 minutes". Sub-minute remainders are dropped.
func PrettyDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	minutes := int(d/time.Minute) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	switch len(parts) {
	case 0:
		return "0 minutes"
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// CardText renders the live card message for an event as Telegram HTML.
// The countdown line depends on now, so periodic refreshes re-render it.
func (e *ScheduledEvent) CardText(now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(e.Title))
	if e.Details != "" {
		fmt.Fprintf(&b, "%s\n", html.EscapeString(e.Details))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "<b>Date:</b> %s\n", PrettyDate(e.Start))
	fmt.Fprintf(&b, "<b>Duration:</b> %s\n", PrettyDuration(e.Duration))
	fmt.Fprintf(&b, "<b>Time until event:</b> %s\n", countdown(e.Start, now))
	if e.Recurrence.Recurring() {
		fmt.Fprintf(&b, "<b>Repeating:</b> %s\n", e.Recurrence.Pretty())
	}
	fmt.Fprintf(&b, "\n<i>Tap the button below to be notified when this event starts.</i>\n")
	fmt.Fprintf(&b, "<code>%s</code>", e.UUID)
	return b.String()
}

// ToggleCallbackPrefix routes card-button taps to the membership toggle.
const ToggleCallbackPrefix = "events:toggle:"

// ToggleCallback is the callback payload carried by an event card's button.
func (e *ScheduledEvent) ToggleCallback() string {
	return ToggleCallbackPrefix + e.UUID.String()
}

func countdown(start, now time.Time) string {
	left := start.Sub(now)
	switch {
	case left <= 0:
		return "now"
	case left < time.Minute:
		return "less than a minute"
	default:
		return PrettyDuration(left)
	}
}
