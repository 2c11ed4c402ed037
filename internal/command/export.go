package command

import (
	"context"
	"fmt"
	"html"

	ical "github.com/arran4/golang-ical"

	"eventbot/internal/event"
)

// eventExport renders the whole schedule as an iCalendar document so users
// can import it into their own calendars.
func (d *Dispatcher) eventExport(ctx context.Context, req *request) error {
	events := d.deps.Sched.Events().List()
	if len(events) == 0 {
		return req.reply(ctx, "No events to export.")
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//eventbot//schedule//EN")
	now := d.deps.Now()

	for _, e := range events {
		ve := cal.AddEvent(e.UUID.String())
		ve.SetCreatedTime(now)
		ve.SetDtStampTime(now)
		ve.SetStartAt(e.Start)
		ve.SetEndAt(e.End())
		ve.SetSummary(e.Title)
		if e.Details != "" {
			ve.SetDescription(e.Details)
		}
		if freq, ok := rruleFreq(e.Recurrence); ok {
			ve.AddRrule("FREQ=" + freq)
		}
	}

	return req.replyHTML(ctx, fmt.Sprintf("<pre>%s</pre>", html.EscapeString(cal.Serialize())))
}

func rruleFreq(r event.Recurrence) (string, bool) {
	switch r {
	case event.Daily:
		return "DAILY", true
	case event.Weekly:
		return "WEEKLY", true
	case event.Monthly:
		return "MONTHLY", true
	case event.Yearly:
		return "YEARLY", true
	default:
		return "", false
	}
}
