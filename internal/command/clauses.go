package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"eventbot/internal/event"
)

// eventSpec accumulates the clauses of an event create or edit command.
// Unset fields keep their zero value; the caller decides the defaults.
type eventSpec struct {
	title    string
	hasTitle bool

	year    int
	month   time.Month
	day     int
	hasDate bool

	hour, minute int
	hasTime      bool

	duration    time.Duration
	hasDuration bool

	recurrence    event.Recurrence
	hasRecurrence bool

	details    string
	hasDetails bool
}

// parseClauses consumes clause groups until the input ends:
//
//	named <title>                       (edits only)
//	on <today|tomorrow|Month Day Year>
//	at <H[:MM]> [am|pm]
//	lasting <N days> <N hours> <N minutes>
//	repeating <never|daily|weekly|monthly|yearly>
//	with description <rest of message>
//
// Each keyword probe marks the tokenizer first so an unrecognized token can
// be reported without being consumed.
func parseClauses(tok *Tokenizer, spec *eventSpec, now time.Time, allowNamed bool) error {
	for tok.HasNext() {
		tok.Mark()
		t, err := tok.Next()
		if err != nil {
			return err
		}
		keyword := strings.ToLower(t.Value)
		switch {
		case keyword == "named" && allowNamed:
			if err := parseTitle(tok, spec); err != nil {
				return err
			}
		case keyword == "on":
			if err := parseDate(tok, spec, now); err != nil {
				return err
			}
		case keyword == "at":
			if err := parseTime(tok, spec); err != nil {
				return err
			}
		case keyword == "lasting":
			if err := parseDuration(tok, spec); err != nil {
				return err
			}
		case keyword == "repeating":
			if err := parseRecurrence(tok, spec); err != nil {
				return err
			}
		case keyword == "with":
			if err := parseDescription(tok, spec); err != nil {
				return err
			}
		default:
			tok.Revert()
			return fmt.Errorf("unrecognized clause starting at %q", t.Raw)
		}
	}
	return nil
}

func parseTitle(tok *Tokenizer, spec *eventSpec) error {
	t, err := tok.Next()
	if err != nil {
		return fmt.Errorf("named: missing title")
	}
	spec.title = t.Value
	spec.hasTitle = true
	return nil
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

func parseDate(tok *Tokenizer, spec *eventSpec, now time.Time) error {
	t, err := tok.Next()
	if err != nil {
		return fmt.Errorf("on: missing date")
	}
	word := strings.ToLower(t.Value)

	switch word {
	case "today":
		spec.year, spec.month, spec.day = now.Year(), now.Month(), now.Day()
		spec.hasDate = true
		return nil
	case "tomorrow":
		tm := now.AddDate(0, 0, 1)
		spec.year, spec.month, spec.day = tm.Year(), tm.Month(), tm.Day()
		spec.hasDate = true
		return nil
	}

	month, ok := months[word]
	if !ok {
		return fmt.Errorf("on: %q is not a date", t.Raw)
	}
	dayTok, err := tok.Next()
	if err != nil || dayTok.Kind != Number {
		return fmt.Errorf("on %s: missing day of month", t.Value)
	}
	yearTok, err := tok.Next()
	if err != nil || yearTok.Kind != Number {
		return fmt.Errorf("on %s %d: missing year", t.Value, dayTok.Num)
	}
	day, year := int(dayTok.Num), int(yearTok.Num)
	if day < 1 || day > 31 {
		return fmt.Errorf("on: day %d out of range", day)
	}
	spec.year, spec.month, spec.day = year, month, day
	spec.hasDate = true
	return nil
}

func parseTime(tok *Tokenizer, spec *eventSpec) error {
	t, err := tok.Next()
	if err != nil {
		return fmt.Errorf("at: missing time")
	}

	hour, minute, err := splitClock(t.Value)
	if err != nil {
		return fmt.Errorf("at: %w", err)
	}

	// Optional am/pm marker; anything else is handed back.
	if tok.HasNext() {
		tok.Mark()
		m, err := tok.Next()
		if err == nil {
			switch strings.ToLower(m.Value) {
			case "am":
				if hour == 12 {
					hour = 0
				}
			case "pm":
				if hour < 12 {
					hour += 12
				}
			default:
				tok.Revert()
			}
		}
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("at: %02d:%02d is not a time of day", hour, minute)
	}
	spec.hour, spec.minute = hour, minute
	spec.hasTime = true
	return nil
}

func splitClock(s string) (hour, minute int, err error) {
	hs, ms, found := strings.Cut(s, ":")
	hour, err = strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not a time", s)
	}
	if !found {
		return hour, 0, nil
	}
	minute, err = strconv.Atoi(ms)
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not a time", s)
	}
	return hour, minute, nil
}

// parseDuration reads one or more "<number> <unit>" pairs and stops at the
// first token that is not a number.
func parseDuration(tok *Tokenizer, spec *eventSpec) error {
	var total time.Duration
	pairs := 0
	for tok.HasNext() {
		tok.Mark()
		n, err := tok.Next()
		if err != nil {
			break
		}
		if n.Kind != Number {
			tok.Revert()
			break
		}
		u, err := tok.Next()
		if err != nil {
			return fmt.Errorf("lasting: number %d without a unit", n.Num)
		}
		switch strings.TrimSuffix(strings.ToLower(u.Value), "s") {
		case "day":
			total += time.Duration(n.Num) * 24 * time.Hour
		case "hour":
			total += time.Duration(n.Num) * time.Hour
		case "minute":
			total += time.Duration(n.Num) * time.Minute
		default:
			return fmt.Errorf("lasting: %q is not a unit of time", u.Raw)
		}
		pairs++
	}
	if pairs == 0 {
		return fmt.Errorf("lasting: missing duration")
	}
	if total <= 0 {
		return fmt.Errorf("lasting: duration must be positive")
	}
	spec.duration = total
	spec.hasDuration = true
	return nil
}

func parseRecurrence(tok *Tokenizer, spec *eventSpec) error {
	t, err := tok.Next()
	if err != nil {
		return fmt.Errorf("repeating: missing interval")
	}
	r, ok := event.ParseRecurrence(t.Value)
	if !ok {
		return fmt.Errorf("repeating: %q is not one of never, daily, weekly, monthly, yearly", t.Raw)
	}
	spec.recurrence = r
	spec.hasRecurrence = true
	return nil
}

// parseDescription expects "with description <rest>" and consumes the rest of
// the message verbatim.
func parseDescription(tok *Tokenizer, spec *eventSpec) error {
	t, err := tok.Next()
	if err != nil || !strings.EqualFold(t.Value, "description") {
		return fmt.Errorf(`expected "description" after "with"`)
	}
	rest, err := tok.Remaining()
	if err != nil {
		return fmt.Errorf("with description: missing text")
	}
	spec.details = rest.Value
	spec.hasDetails = true
	return nil
}

// startTime combines the spec's date and time clauses with fallbacks: the
// base (existing start for edits, today for creates) fills whichever half is
// missing.
func (s *eventSpec) startTime(base time.Time) time.Time {
	year, month, day := base.Year(), base.Month(), base.Day()
	if s.hasDate {
		year, month, day = s.year, s.month, s.day
	}
	hour, minute := base.Hour(), base.Minute()
	if s.hasTime {
		hour, minute = s.hour, s.minute
	}
	return time.Date(year, month, day, hour, minute, 0, 0, base.Location())
}
