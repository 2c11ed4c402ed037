package command

import (
	"testing"
	"time"

	"eventbot/internal/event"
)

var parseNow = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

func parseSpec(t *testing.T, input string, allowNamed bool) eventSpec {
	t.Helper()
	var spec eventSpec
	if err := parseClauses(NewTokenizer(input, ""), &spec, parseNow, allowNamed); err != nil {
		t.Fatalf("parseClauses(%q): %v", input, err)
	}
	return spec
}

func TestParseClausesFull(t *testing.T) {
	t.Parallel()

	spec := parseSpec(t, "on march 22 2025 at 7:30 pm lasting 2 hours 30 minutes repeating weekly with description bring snacks and chairs", false)

	if !spec.hasDate || spec.year != 2025 || spec.month != time.March || spec.day != 22 {
		t.Errorf("date = %v-%v-%v", spec.year, spec.month, spec.day)
	}
	if !spec.hasTime || spec.hour != 19 || spec.minute != 30 {
		t.Errorf("time = %02d:%02d, want 19:30", spec.hour, spec.minute)
	}
	if !spec.hasDuration || spec.duration != 2*time.Hour+30*time.Minute {
		t.Errorf("duration = %v", spec.duration)
	}
	if !spec.hasRecurrence || spec.recurrence != event.Weekly {
		t.Errorf("recurrence = %v", spec.recurrence)
	}
	if !spec.hasDetails || spec.details != "bring snacks and chairs" {
		t.Errorf("details = %q", spec.details)
	}
}

func TestParseClausesRelativeDates(t *testing.T) {
	t.Parallel()

	spec := parseSpec(t, "on today at 9:00", false)
	if spec.day != 10 || spec.month != time.March {
		t.Errorf("today = %v %d", spec.month, spec.day)
	}

	spec = parseSpec(t, "on tomorrow at 9:00", false)
	if spec.day != 11 {
		t.Errorf("tomorrow = day %d", spec.day)
	}
}

func TestParseTimeForms(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in           string
		hour, minute int
	}{
		{"at 9", 9, 0},
		{"at 9:15", 9, 15},
		{"at 9 am", 9, 0},
		{"at 9 pm", 21, 0},
		{"at 12 am", 0, 0},
		{"at 12 pm", 12, 0},
		{"at 23:59", 23, 59},
	}
	for _, tc := range cases {
		spec := parseSpec(t, tc.in, false)
		if spec.hour != tc.hour || spec.minute != tc.minute {
			t.Errorf("%q = %02d:%02d, want %02d:%02d", tc.in, spec.hour, spec.minute, tc.hour, tc.minute)
		}
	}
}

func TestParseTimeLeavesFollowingClauseAlone(t *testing.T) {
	t.Parallel()

	// "lasting" must not be eaten as an am/pm marker.
	spec := parseSpec(t, "at 9 lasting 1 hours", false)
	if spec.hour != 9 || !spec.hasDuration || spec.duration != time.Hour {
		t.Errorf("spec = %+v", spec)
	}
}

func TestParseNamedOnlyForEdits(t *testing.T) {
	t.Parallel()

	spec := parseSpec(t, `named "New title" at 9`, true)
	if !spec.hasTitle || spec.title != "New title" {
		t.Errorf("title = %q", spec.title)
	}

	var create eventSpec
	if err := parseClauses(NewTokenizer(`named "x"`, ""), &create, parseNow, false); err == nil {
		t.Error("named accepted outside edits")
	}
}

func TestParseClauseErrors(t *testing.T) {
	t.Parallel()

	cases := []string{
		"banana",
		"on",
		"on someday",
		"on march",
		"on march 12",
		"on march 40 2025 at 9",
		"at",
		"at noonish",
		"at 25:00",
		"at 9:75",
		"lasting",
		"lasting 5",
		"lasting 5 fortnights",
		"lasting 0 minutes",
		"repeating",
		"repeating sometimes",
		"with snacks",
		"with description",
	}
	for _, in := range cases {
		var spec eventSpec
		if err := parseClauses(NewTokenizer(in, ""), &spec, parseNow, false); err == nil {
			t.Errorf("parseClauses(%q) accepted bad input", in)
		}
	}
}

func TestStartTimeMergesWithBase(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.June, 1, 18, 30, 0, 0, time.UTC)

	// Time only: keep the base date.
	spec := parseSpec(t, "at 9:00", false)
	got := spec.startTime(base)
	want := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("time-only start = %v, want %v", got, want)
	}

	// Date only: keep the base time of day.
	spec = parseSpec(t, "on june 5 2025", false)
	got = spec.startTime(base)
	want = time.Date(2025, time.June, 5, 18, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("date-only start = %v, want %v", got, want)
	}
}
