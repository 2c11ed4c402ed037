// Package event holds the scheduling domain: the event entity, recurrence
// arithmetic, the ordered in-memory store, and message-card rendering.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventbot/internal/storage"
)

// ScheduledEvent is one scheduled occurrence of an event. Start always refers
// to the next (or current) occurrence; recurring events are advanced in place
// after each run.
type ScheduledEvent struct {
	UUID       uuid.UUID
	Title      string
	Details    string
	Start      time.Time
	Duration   time.Duration
	Recurrence Recurrence

	// ChannelID is the chat the card and start notification live in.
	ChannelID int64
	// MessageID is the live card message for this event.
	MessageID int
	// PingMessageID is the start notification for the current occurrence,
	// 0 while none is live.
	PingMessageID int

	// GroupID is the notification group pinged at start time. It is not
	// persisted; restarts resolve it again by group name.
	GroupID int64
}

// New builds a fresh event with a random identity.
func New(title, details string, start time.Time, duration time.Duration, rec Recurrence, channelID int64) *ScheduledEvent {
	return &ScheduledEvent{
		UUID:       uuid.New(),
		Title:      title,
		Details:    details,
		Start:      start,
		Duration:   duration,
		Recurrence: rec,
		ChannelID:  channelID,
	}
}

// End is the instant the current occurrence finishes.
func (e *ScheduledEvent) End() time.Time { return e.Start.Add(e.Duration) }

// GroupName is the notification group's name, stable across restarts so the
// group can be found again by lookup.
func (e *ScheduledEvent) GroupName() string {
	return e.Title + " " + e.UUID.String()
}

// Record converts the event to its durable form. GroupID is deliberately
// dropped.
func (e *ScheduledEvent) Record() storage.EventRecord {
	return storage.EventRecord{
		UUID:          e.UUID.String(),
		Start:         e.Start,
		Duration:      e.Duration,
		Recurrence:    string(e.Recurrence),
		Title:         e.Title,
		Details:       e.Details,
		ChannelID:     e.ChannelID,
		MessageID:     e.MessageID,
		PingMessageID: e.PingMessageID,
	}
}

// FromRecord rebuilds an event from its durable form.
func FromRecord(r storage.EventRecord) (*ScheduledEvent, error) {
	id, err := uuid.Parse(r.UUID)
	if err != nil {
		return nil, fmt.Errorf("event record %q: %w", r.UUID, err)
	}
	rec, ok := ParseRecurrence(r.Recurrence)
	if !ok {
		return nil, fmt.Errorf("event record %s: unknown recurrence %q", r.UUID, r.Recurrence)
	}
	return &ScheduledEvent{
		UUID:          id,
		Title:         r.Title,
		Details:       r.Details,
		Start:         r.Start,
		Duration:      r.Duration,
		Recurrence:    rec,
		ChannelID:     r.ChannelID,
		MessageID:     r.MessageID,
		PingMessageID: r.PingMessageID,
	}, nil
}

// clone returns an independent copy, used to hand workers a snapshot.
func (e *ScheduledEvent) clone() *ScheduledEvent {
	c := *e
	return &c
}
