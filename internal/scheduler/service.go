// Package scheduler runs the event lifecycle: a polling loop that fires due
// events, one worker per firing, and the create/edit/delete orchestration
// shared with the command layer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventbot/internal/event"
	"eventbot/internal/runtime/supervisor"
	"eventbot/internal/storage"
	"eventbot/internal/transport"
	"eventbot/pkg/logx"
)

// Config tunes the scheduler. Zero values fall back to defaults.
type Config struct {
	// PollInterval is how often the queue head is checked. The coarse poll
	// bounds firing latency; events never fire early.
	PollInterval time.Duration
	// GroupLookupRetries and GroupLookupDelay bound the re-lookup of a
	// notification group right after creating it.
	GroupLookupRetries int
	GroupLookupDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.GroupLookupRetries <= 0 {
		c.GroupLookupRetries = 10
	}
	if c.GroupLookupDelay <= 0 {
		c.GroupLookupDelay = 100 * time.Millisecond
	}
	return c
}

// Service owns the in-memory event store and drives workers off it.
type Service struct {
	log     logx.Logger
	adapter transport.Adapter
	events  *event.Store
	records storage.EventStore
	sup     *supervisor.Supervisor
	now     func() time.Time

	mu  sync.Mutex
	cfg Config
}

func New(log logx.Logger, adapter transport.Adapter, events *event.Store, records storage.EventStore, sup *supervisor.Supervisor, cfg Config) *Service {
	return &Service{
		log:     log.With(logx.String("comp", "scheduler")),
		adapter: adapter,
		events:  events,
		records: records,
		sup:     sup,
		now:     time.Now,
		cfg:     cfg.withDefaults(),
	}
}

// Events exposes the store for read paths (list, find, export).
func (s *Service) Events() *event.Store { return s.events }

// Apply swaps in new tuning; the next poll tick picks it up.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Run polls the queue and hands every due event to its own worker. It exits
// only when ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	cfg := s.config()
	s.log.Info("scheduler started", logx.Duration("poll", cfg.PollInterval))

	timer := time.NewTimer(cfg.PollInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		now := s.now()
		for {
			e, ok := s.events.PopDue(now)
			if !ok {
				break
			}
			fired := e
			s.sup.Go("event-worker "+fired.UUID.String(), func(ctx context.Context) error {
				return s.runEvent(ctx, fired)
			})
		}

		cfg = s.config()
		timer.Reset(cfg.PollInterval)
	}
}

// CreateParams is the input to Create, already parsed and validated.
type CreateParams struct {
	Title      string
	Details    string
	Start      time.Time
	Duration   time.Duration
	Recurrence event.Recurrence
	ChannelID  int64
}

// Create builds the event, its notification group and its card message,
// persists the record, and queues the event.
func (s *Service) Create(ctx context.Context, p CreateParams) (*event.ScheduledEvent, error) {
	e := event.New(p.Title, p.Details, p.Start, p.Duration, p.Recurrence, p.ChannelID)

	cfg := s.config()
	g, err := event.EnsureGroup(ctx, s.adapter, e, cfg.GroupLookupRetries, cfg.GroupLookupDelay)
	if err != nil {
		return nil, err
	}
	e.GroupID = g.ID

	ref, err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: e.ChannelID}, e.CardText(s.now()), s.CardOptions(e))
	if err != nil {
		_ = s.adapter.DeleteGroup(ctx, g.ID)
		return nil, fmt.Errorf("send event card: %w", err)
	}
	e.MessageID = ref.MessageID

	if err := s.records.PutEvent(ctx, e.Record()); err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}
	s.events.Insert(e)
	s.log.Info("event created",
		logx.String("uuid", e.UUID.String()),
		logx.String("title", e.Title),
		logx.Time("start", e.Start))
	return e, nil
}

// Edit applies mutate to the live event, persists the result, and redraws the
// card. Edits during a firing touch the indexed copy; the running worker keeps
// its snapshot.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, mutate func(*event.ScheduledEvent)) (*event.ScheduledEvent, error) {
	var prevGroup string
	e, ok := s.events.Update(id, func(live *event.ScheduledEvent) {
		prevGroup = live.GroupName()
		mutate(live)
	})
	if !ok {
		return nil, ErrUnknownEvent
	}

	if err := s.records.PutEvent(ctx, e.Record()); err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}
	// The group name embeds the title; restarts look the group up by the
	// current title, so a title change has to rename the group.
	if e.GroupID != 0 && e.GroupName() != prevGroup {
		if err := s.adapter.RenameGroup(ctx, e.GroupID, e.GroupName()); err != nil {
			s.log.Warn("rename group failed", logx.Err(err), logx.String("uuid", id.String()))
		}
	}
	if err := s.RefreshCard(ctx, e); err != nil {
		s.log.Warn("card refresh after edit failed", logx.Err(err), logx.String("uuid", id.String()))
	}
	return e, nil
}

// Delete tears an event down: card and ping messages, notification group,
// durable record, queue entry. A worker already running for it finishes on
// its own snapshot.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	e, ok := s.events.Remove(id)
	if !ok {
		return ErrUnknownEvent
	}
	s.cleanupMessages(ctx, e)
	s.deleteGroup(ctx, e)
	if err := s.records.DeleteEvent(ctx, id.String()); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	s.log.Info("event deleted", logx.String("uuid", id.String()), logx.String("title", e.Title))
	return nil
}

// RefreshCard redraws the event's card message with a fresh countdown.
func (s *Service) RefreshCard(ctx context.Context, e *event.ScheduledEvent) error {
	ref := transport.MessageRef{ChatID: e.ChannelID, MessageID: e.MessageID}
	err := s.adapter.EditText(ctx, ref, e.CardText(s.now()), s.CardOptions(e))
	if err != nil && errors.Is(err, transport.ErrNotModified) {
		return nil
	}
	return err
}

// CardOptions is the markup every card message is sent or edited with.
func (s *Service) CardOptions(e *event.ScheduledEvent) *transport.SendOptions {
	return &transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
		Buttons: [][]transport.Button{{
			{Text: "Notify me", Data: e.ToggleCallback()},
		}},
	}
}

func (s *Service) cleanupMessages(ctx context.Context, e *event.ScheduledEvent) {
	if e.MessageID != 0 {
		ref := transport.MessageRef{ChatID: e.ChannelID, MessageID: e.MessageID}
		if err := s.adapter.DeleteMessage(ctx, ref); err != nil {
			s.log.Warn("delete card failed", logx.Err(err), logx.String("uuid", e.UUID.String()))
		}
	}
	if e.PingMessageID != 0 {
		ref := transport.MessageRef{ChatID: e.ChannelID, MessageID: e.PingMessageID}
		if err := s.adapter.DeleteMessage(ctx, ref); err != nil {
			s.log.Warn("delete ping failed", logx.Err(err), logx.String("uuid", e.UUID.String()))
		}
	}
}

func (s *Service) deleteGroup(ctx context.Context, e *event.ScheduledEvent) {
	id := e.GroupID
	if id == 0 {
		g, ok, err := s.adapter.FindGroup(ctx, e.GroupName())
		if err != nil || !ok {
			return
		}
		id = g.ID
	}
	if err := s.adapter.DeleteGroup(ctx, id); err != nil {
		s.log.Warn("delete group failed", logx.Err(err), logx.String("uuid", e.UUID.String()))
	}
}

// ErrUnknownEvent is returned for operations on a uuid no live event carries.
var ErrUnknownEvent = errors.New("scheduler: unknown event")
