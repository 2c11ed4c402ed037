// Package recovery rebuilds the in-memory schedule from durable records at
// startup. Each record is classified as finished, in progress, or upcoming,
// and the platform-side artifacts (card, ping, notification group) are
// reconciled to match.
package recovery

import (
	"context"
	"fmt"
	"time"

	"eventbot/internal/event"
	"eventbot/internal/scheduler"
	"eventbot/internal/storage"
	"eventbot/internal/transport"
	"eventbot/pkg/logx"
)

type Loader struct {
	log     logx.Logger
	adapter transport.Adapter
	records storage.EventStore
	svc     *scheduler.Service
	now     func() time.Time

	groupRetries int
	groupDelay   time.Duration
}

func New(log logx.Logger, adapter transport.Adapter, records storage.EventStore, svc *scheduler.Service, groupRetries int, groupDelay time.Duration) *Loader {
	return &Loader{
		log:          log.With(logx.String("comp", "recovery")),
		adapter:      adapter,
		records:      records,
		svc:          svc,
		now:          time.Now,
		groupRetries: groupRetries,
		groupDelay:   groupDelay,
	}
}

// Run loads every durable record. Unparseable or unrecoverable records are
// logged and skipped; one bad row must not take the rest of the schedule down.
func (l *Loader) Run(ctx context.Context) error {
	recs, err := l.records.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("list event records: %w", err)
	}

	loaded := 0
	for _, r := range recs {
		e, err := event.FromRecord(r)
		if err != nil {
			l.log.Error("skipping corrupt event record", logx.Err(err), logx.String("uuid", r.UUID))
			continue
		}
		ok, err := l.restore(ctx, e)
		if err != nil {
			l.log.Error("event recovery failed", logx.Err(err), logx.String("uuid", r.UUID))
			continue
		}
		if ok {
			loaded++
		}
	}
	l.log.Info("recovery finished", logx.Int("records", len(recs)), logx.Int("loaded", loaded))
	return nil
}

// restore reconciles one event. It reports whether the event was put back on
// the schedule (finished one-shots are retired instead).
func (l *Loader) restore(ctx context.Context, e *event.ScheduledEvent) (bool, error) {
	now := l.now()
	log := l.log.With(logx.String("uuid", e.UUID.String()), logx.String("title", e.Title))

	// Without a reachable channel there is nowhere to put the card or the
	// ping, so the event cannot be brought back in any state.
	if _, err := l.adapter.FetchChannel(ctx, e.ChannelID); err != nil {
		log.Warn("event channel unreachable, retiring", logx.Err(err))
		l.retire(ctx, e)
		return false, nil
	}

	if !now.Before(e.End()) {
		// Missed the whole occurrence while down.
		if !e.Recurrence.Recurring() {
			log.Info("retiring event that ended while offline")
			l.retire(ctx, e)
			return false, nil
		}
		l.dropStalePing(ctx, e, log)
		e.Start = event.Advance(e.Start, e.Recurrence, now)
		log.Info("advanced recurring event past missed occurrences", logx.Time("next", e.Start))
	} else if !now.Before(e.Start) {
		// In progress. Keep a still-live ping so the worker resumes without
		// pinging twice; replace a lost one by clearing the id.
		if e.PingMessageID != 0 {
			ref := transport.MessageRef{ChatID: e.ChannelID, MessageID: e.PingMessageID}
			exists, err := l.adapter.FetchMessage(ctx, ref)
			if err != nil || !exists {
				e.PingMessageID = 0
			}
		}
		log.Info("resuming event already in progress")
	} else {
		// Future start: a leftover ping reference belongs to an earlier
		// state, and keeping it would make the worker skip the real ping.
		l.dropStalePing(ctx, e, log)
	}

	if err := l.attachGroup(ctx, e, log); err != nil {
		return false, err
	}
	if err := l.ensureCard(ctx, e, log); err != nil {
		return false, err
	}
	if err := l.records.PutEvent(ctx, e.Record()); err != nil {
		return false, fmt.Errorf("persist recovered event: %w", err)
	}
	l.svc.Events().Insert(e)
	return true, nil
}

// attachGroup re-resolves the notification group by its stable name, creating
// it afresh when it disappeared while the bot was down.
func (l *Loader) attachGroup(ctx context.Context, e *event.ScheduledEvent, log logx.Logger) error {
	g, ok, err := l.adapter.FindGroup(ctx, e.GroupName())
	if err != nil {
		return fmt.Errorf("find group: %w", err)
	}
	if !ok {
		log.Warn("notification group lost, recreating")
		g, err = event.EnsureGroup(ctx, l.adapter, e, l.groupRetries, l.groupDelay)
		if err != nil {
			return err
		}
	}
	e.GroupID = g.ID
	return nil
}

// ensureCard re-sends the card when the original message is gone, otherwise
// redraws it so the countdown is current.
func (l *Loader) ensureCard(ctx context.Context, e *event.ScheduledEvent, log logx.Logger) error {
	ref := transport.MessageRef{ChatID: e.ChannelID, MessageID: e.MessageID}
	exists := false
	if e.MessageID != 0 {
		var err error
		exists, err = l.adapter.FetchMessage(ctx, ref)
		if err != nil {
			return fmt.Errorf("probe card message: %w", err)
		}
	}
	if exists {
		if err := l.svc.RefreshCard(ctx, e); err != nil {
			log.Warn("card redraw failed", logx.Err(err))
		}
		return nil
	}

	log.Warn("card message lost, sending a new one")
	e.MessageID = 0
	newRef, err := l.adapter.SendText(ctx, transport.ChatTarget{ChatID: e.ChannelID}, e.CardText(l.now()), l.svc.CardOptions(e))
	if err != nil {
		return fmt.Errorf("send replacement card: %w", err)
	}
	e.MessageID = newRef.MessageID
	return nil
}

// retire removes every trace of an event that is not coming back.
func (l *Loader) retire(ctx context.Context, e *event.ScheduledEvent) {
	l.dropStalePing(ctx, e, l.log)
	if e.MessageID != 0 {
		_ = l.adapter.DeleteMessage(ctx, transport.MessageRef{ChatID: e.ChannelID, MessageID: e.MessageID})
	}
	if g, ok, err := l.adapter.FindGroup(ctx, e.GroupName()); err == nil && ok {
		_ = l.adapter.DeleteGroup(ctx, g.ID)
	}
	if err := l.records.DeleteEvent(ctx, e.UUID.String()); err != nil {
		l.log.Error("delete finished event record failed", logx.Err(err), logx.String("uuid", e.UUID.String()))
	}
}

func (l *Loader) dropStalePing(ctx context.Context, e *event.ScheduledEvent, log logx.Logger) {
	if e.PingMessageID == 0 {
		return
	}
	ref := transport.MessageRef{ChatID: e.ChannelID, MessageID: e.PingMessageID}
	if err := l.adapter.DeleteMessage(ctx, ref); err != nil {
		log.Warn("delete stale ping failed", logx.Err(err))
	}
	e.PingMessageID = 0
}
