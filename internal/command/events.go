package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventbot/internal/event"
	"eventbot/internal/scheduler"
)

const eventUsage = "usage: event <list|create|edit|delete|refreshembed|export>"

func (d *Dispatcher) cmdEvent(ctx context.Context, req *request) error {
	sub, err := req.tok.Next()
	if err != nil {
		return fmt.Errorf(eventUsage)
	}
	switch strings.ToLower(sub.Value) {
	case "list":
		return d.eventList(ctx, req)
	case "create":
		return d.eventCreate(ctx, req)
	case "edit":
		return d.eventEdit(ctx, req)
	case "delete":
		return d.eventDelete(ctx, req)
	case "refreshembed":
		return d.eventRefresh(ctx, req)
	case "export":
		return d.eventExport(ctx, req)
	default:
		return fmt.Errorf("unknown event action %q; %s", sub.Raw, eventUsage)
	}
}

func (d *Dispatcher) eventList(ctx context.Context, req *request) error {
	events := d.deps.Sched.Events().List()
	if len(events) == 0 {
		return req.reply(ctx, "No events are scheduled.")
	}
	var b strings.Builder
	b.WriteString("Scheduled events:\n")
	for _, e := range events {
		fmt.Fprintf(&b, "%s - %s", e.Title, event.PrettyDate(e.Start))
		if e.Recurrence.Recurring() {
			fmt.Fprintf(&b, " (%s)", strings.ToLower(e.Recurrence.String()))
		}
		fmt.Fprintf(&b, "\n  %s\n", e.UUID)
	}
	return req.reply(ctx, b.String())
}

// eventCreate parses "event create <title> [clauses]". The date defaults to
// today and the duration to one hour; the time of day is mandatory.
func (d *Dispatcher) eventCreate(ctx context.Context, req *request) error {
	titleTok, err := req.tok.Next()
	if err != nil {
		return fmt.Errorf("usage: event create <title> [on <date>] at <time> [lasting <duration>] [repeating <interval>] [with description <text>]")
	}
	title := strings.TrimSpace(titleTok.Value)
	if title == "" {
		return fmt.Errorf("the title must not be empty")
	}

	now := d.deps.Now()
	var spec eventSpec
	if err := parseClauses(req.tok, &spec, now, false); err != nil {
		return err
	}
	if !spec.hasTime {
		return fmt.Errorf("missing \"at <time>\" clause")
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := spec.startTime(today)

	recurrence := event.Never
	if spec.hasRecurrence {
		recurrence = spec.recurrence
	}
	if !start.After(now) {
		if !recurrence.Recurring() {
			return fmt.Errorf("%s is already in the past", event.PrettyDate(start))
		}
		start = event.Advance(start, recurrence, now)
	}

	duration := time.Hour
	if spec.hasDuration {
		duration = spec.duration
	}

	e, err := d.deps.Sched.Create(ctx, scheduler.CreateParams{
		Title:      title,
		Details:    spec.details,
		Start:      start,
		Duration:   duration,
		Recurrence: recurrence,
		ChannelID:  d.eventChannel(ctx, req.msg.ChatID),
	})
	if err != nil {
		return err
	}
	return req.reply(ctx, fmt.Sprintf("Created %s for %s.", e.Title, event.PrettyDate(e.Start)))
}

// eventEdit merges the given clauses into the existing event; a date clause
// without a time keeps the old time of day, and vice versa.
func (d *Dispatcher) eventEdit(ctx context.Context, req *request) error {
	id, err := requireUUID(req.tok, "event edit")
	if err != nil {
		return err
	}

	now := d.deps.Now()
	var spec eventSpec
	if err := parseClauses(req.tok, &spec, now, true); err != nil {
		return err
	}
	if spec.hasTitle && strings.TrimSpace(spec.title) == "" {
		return fmt.Errorf("the title must not be empty")
	}

	e, err := d.deps.Sched.Edit(ctx, id, func(e *event.ScheduledEvent) {
		if spec.hasTitle {
			e.Title = spec.title
		}
		if spec.hasDate || spec.hasTime {
			e.Start = spec.startTime(e.Start)
		}
		if spec.hasDuration {
			e.Duration = spec.duration
		}
		if spec.hasRecurrence {
			e.Recurrence = spec.recurrence
		}
		if spec.hasDetails {
			e.Details = spec.details
		}
	})
	if err != nil {
		return err
	}
	return req.reply(ctx, fmt.Sprintf("Updated %s; next occurrence %s.", e.Title, event.PrettyDate(e.Start)))
}

func (d *Dispatcher) eventDelete(ctx context.Context, req *request) error {
	id, err := requireUUID(req.tok, "event delete")
	if err != nil {
		return err
	}
	e, ok := d.deps.Sched.Events().Find(id)
	if !ok {
		return fmt.Errorf("no event with uuid %s", id)
	}
	if err := d.deps.Sched.Delete(ctx, id); err != nil {
		return err
	}
	return req.reply(ctx, fmt.Sprintf("Deleted %s.", e.Title))
}

// eventRefresh redraws one card, or every card when no uuid is given.
func (d *Dispatcher) eventRefresh(ctx context.Context, req *request) error {
	if !req.tok.HasNext() {
		for _, e := range d.deps.Sched.Events().List() {
			if err := d.deps.Sched.RefreshCard(ctx, e); err != nil {
				return err
			}
		}
		return req.reply(ctx, "Refreshed all event cards.")
	}
	id, err := requireUUID(req.tok, "event refreshembed")
	if err != nil {
		return err
	}
	e, ok := d.deps.Sched.Events().Find(id)
	if !ok {
		return fmt.Errorf("no event with uuid %s", id)
	}
	if err := d.deps.Sched.RefreshCard(ctx, e); err != nil {
		return err
	}
	return req.reply(ctx, fmt.Sprintf("Refreshed the card for %s.", e.Title))
}

func requireUUID(tok *Tokenizer, usage string) (uuid.UUID, error) {
	t, err := tok.Next()
	if err != nil {
		return uuid.Nil, fmt.Errorf("usage: %s <uuid>", usage)
	}
	id, ok := t.AsUUID()
	if !ok {
		return uuid.Nil, fmt.Errorf("%q is not an event uuid", t.Raw)
	}
	return id, nil
}
