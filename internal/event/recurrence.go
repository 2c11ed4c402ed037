package event

import (
	"strings"
	"time"
)

// Recurrence describes how an elapsed event's next occurrence is computed.
type Recurrence string

const (
	Never   Recurrence = "NEVER"
	Daily   Recurrence = "DAILY"
	Weekly  Recurrence = "WEEKLY"
	Monthly Recurrence = "MONTHLY"
	Yearly  Recurrence = "YEARLY"
)

var recurrences = []Recurrence{Never, Daily, Weekly, Monthly, Yearly}

// ParseRecurrence matches a recurrence name case-insensitively.
func ParseRecurrence(s string) (Recurrence, bool) {
	for _, r := range recurrences {
		if strings.EqualFold(s, string(r)) {
			return r, true
		}
	}
	return "", false
}

func (r Recurrence) Recurring() bool { return r != Never && r != "" }

func (r Recurrence) String() string { return string(r) }

// Pretty returns the capitalized display form ("Weekly").
func (r Recurrence) Pretty() string {
	s := strings.ToLower(string(r))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Advance returns the first occurrence strictly after now, reached by
// repeatedly adding one recurrence unit to start. Missed occurrences are
// skipped, never fired retroactively. Calling Advance with a non-recurring
// kind is a programming error.
func Advance(start time.Time, r Recurrence, now time.Time) time.Time {
	var step func(time.Time) time.Time
	switch r {
	case Daily:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case Weekly:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
	case Monthly:
		step = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	case Yearly:
		step = func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }
	default:
		panic("event: Advance called with non-recurring kind " + string(r))
	}

	next := start
	for !next.After(now) {
		next = step(next)
	}
	return next
}
