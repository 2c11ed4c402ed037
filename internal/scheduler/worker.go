package scheduler

import (
	"context"
	"fmt"
	"html"
	"time"

	"eventbot/internal/event"
	"eventbot/internal/transport"
	"eventbot/pkg/logx"
)

// runEvent drives one firing of an event through notify, wait and finalize.
// It works on the snapshot handed over by PopDue; concurrent edits or deletes
// of the same event do not interrupt it.
func (s *Service) runEvent(ctx context.Context, e *event.ScheduledEvent) error {
	log := s.log.With(logx.String("uuid", e.UUID.String()), logx.String("title", e.Title))
	log.Info("event firing", logx.Time("start", e.Start))

	s.notify(ctx, e, log)

	// Sleep out the remaining duration. A restart mid-wait is fine: the
	// record still exists and recovery resumes an in-progress event.
	if remaining := e.End().Sub(s.now()); remaining > 0 {
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			log.Info("shutdown during event wait")
			return ctx.Err()
		case <-timer.C:
		}
	}

	return s.finalize(ctx, e, log)
}

// notify sends the start ping unless a previous run (before a restart)
// already left one live, then persists the ping id so a crash during the wait
// does not ping twice.
func (s *Service) notify(ctx context.Context, e *event.ScheduledEvent, log logx.Logger) {
	if e.PingMessageID != 0 {
		return
	}

	mention := ""
	if e.GroupID != 0 {
		m, err := s.adapter.GroupMention(ctx, e.GroupID)
		if err != nil {
			log.Warn("group mention unavailable", logx.Err(err))
		} else {
			mention = m
		}
	}
	// Mentions are HTML links, so the whole ping goes out as HTML.
	text := fmt.Sprintf("%s %s is now starting", mention, html.EscapeString(e.Title))

	ref, err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: e.ChannelID}, text,
		&transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		// The occurrence still runs; there is just no ping to delete later.
		log.Error("start notification failed", logx.Err(err))
		return
	}
	e.PingMessageID = ref.MessageID
	s.events.Update(e.UUID, func(live *event.ScheduledEvent) {
		live.PingMessageID = ref.MessageID
	})
	if err := s.records.PutEvent(ctx, e.Record()); err != nil {
		log.Error("persist ping id failed", logx.Err(err))
	}
}

// finalize removes the ping and either retires the event or advances it to
// its next occurrence and requeues it.
func (s *Service) finalize(ctx context.Context, e *event.ScheduledEvent, log logx.Logger) error {
	if e.PingMessageID != 0 {
		ref := transport.MessageRef{ChatID: e.ChannelID, MessageID: e.PingMessageID}
		if err := s.adapter.DeleteMessage(ctx, ref); err != nil {
			log.Warn("delete ping failed", logx.Err(err))
		}
		e.PingMessageID = 0
	}

	if !e.Recurrence.Recurring() {
		if e.MessageID != 0 {
			ref := transport.MessageRef{ChatID: e.ChannelID, MessageID: e.MessageID}
			if err := s.adapter.DeleteMessage(ctx, ref); err != nil {
				log.Warn("delete card failed", logx.Err(err))
			}
		}
		s.deleteGroup(ctx, e)
		if err := s.records.DeleteEvent(ctx, e.UUID.String()); err != nil {
			return fmt.Errorf("retire event %s: %w", e.UUID, err)
		}
		s.events.Remove(e.UUID)
		log.Info("event finished")
		return nil
	}

	e.Start = event.Advance(e.Start, e.Recurrence, s.now())
	if err := s.records.PutEvent(ctx, e.Record()); err != nil {
		return fmt.Errorf("persist next occurrence of %s: %w", e.UUID, err)
	}
	// Reinserting the snapshot clobbers any edit made during the run.
	s.events.Insert(e)
	if err := s.RefreshCard(ctx, e); err != nil {
		log.Warn("card refresh after firing failed", logx.Err(err))
	}
	log.Info("event rescheduled", logx.Time("next", e.Start))
	return nil
}
