package scheduler

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eventbot/internal/event"
	"eventbot/internal/storage"
	"eventbot/internal/transport"
	"eventbot/internal/transport/fake"
	"eventbot/pkg/logx"
)

func newTestService(t *testing.T) (*Service, *fake.Adapter, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	a := fake.New()
	svc := New(logx.Nop(), a, event.NewStore(), st, nil, Config{
		GroupLookupRetries: 3,
		GroupLookupDelay:   time.Millisecond,
	})
	return svc, a, st
}

func TestCreateWiresEverything(t *testing.T) {
	svc, a, st := newTestService(t)
	ctx := context.Background()

	start := time.Now().Add(time.Hour)
	e, err := svc.Create(ctx, CreateParams{
		Title:      "Standup",
		Details:    "daily sync",
		Start:      start,
		Duration:   15 * time.Minute,
		Recurrence: event.Daily,
		ChannelID:  -42,
	})
	if err != nil {
		t.Fatal(err)
	}

	if e.MessageID == 0 {
		t.Error("no card message id")
	}
	if e.GroupID == 0 {
		t.Error("no notification group")
	}
	if _, ok, _ := a.FindGroup(ctx, e.GroupName()); !ok {
		t.Error("group not created under the stable name")
	}

	card := a.Text(transport.MessageRef{ChatID: -42, MessageID: e.MessageID})
	if !strings.Contains(card, "Standup") || !strings.Contains(card, e.UUID.String()) {
		t.Errorf("card text wrong:\n%s", card)
	}

	if _, ok, err := st.GetEvent(ctx, e.UUID.String()); err != nil || !ok {
		t.Errorf("record not persisted: ok=%v err=%v", ok, err)
	}
	if _, ok := svc.Events().Find(e.UUID); !ok {
		t.Error("event not queued")
	}
}

func TestCreateRollsBackGroupOnSendFailure(t *testing.T) {
	svc, a, _ := newTestService(t)
	a.FailSend = context.DeadlineExceeded

	_, err := svc.Create(context.Background(), CreateParams{
		Title: "x", Start: time.Now().Add(time.Hour), Duration: time.Hour,
		Recurrence: event.Never, ChannelID: 1,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if gs, _ := a.ListGroups(context.Background()); len(gs) != 0 {
		t.Errorf("orphan group left behind: %v", gs)
	}
}

func TestDeleteTearsDown(t *testing.T) {
	svc, a, st := newTestService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, CreateParams{
		Title: "Raid", Start: time.Now().Add(time.Hour), Duration: time.Hour,
		Recurrence: event.Never, ChannelID: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, e.UUID); err != nil {
		t.Fatal(err)
	}
	if a.MessageCount() != 0 {
		t.Error("card message survived delete")
	}
	if gs, _ := a.ListGroups(ctx); len(gs) != 0 {
		t.Error("group survived delete")
	}
	if _, ok, _ := st.GetEvent(ctx, e.UUID.String()); ok {
		t.Error("record survived delete")
	}
	if err := svc.Delete(ctx, e.UUID); err != ErrUnknownEvent {
		t.Errorf("second delete = %v, want ErrUnknownEvent", err)
	}
}

func TestEditPersistsAndRenamesGroup(t *testing.T) {
	svc, a, st := newTestService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, CreateParams{
		Title: "Old name", Start: time.Now().Add(time.Hour), Duration: time.Hour,
		Recurrence: event.Never, ChannelID: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Edit(ctx, e.UUID, func(x *event.ScheduledEvent) {
		x.Title = "New name"
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "New name" {
		t.Fatalf("edit lost: %+v", got)
	}

	r, ok, _ := st.GetEvent(ctx, e.UUID.String())
	if !ok || r.Title != "New name" {
		t.Errorf("record not updated: %+v", r)
	}
	if _, ok, _ := a.FindGroup(ctx, got.GroupName()); !ok {
		t.Error("group not renamed to follow the title")
	}

	card := a.Text(transport.MessageRef{ChatID: 1, MessageID: e.MessageID})
	if !strings.Contains(card, "New name") {
		t.Error("card not redrawn after edit")
	}
}

func TestEditWithoutTitleChangeSkipsRename(t *testing.T) {
	svc, a, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, CreateParams{
		Title: "Raid", Start: time.Now().Add(time.Hour), Duration: time.Hour,
		Recurrence: event.Never, ChannelID: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Edit(ctx, e.UUID, func(x *event.ScheduledEvent) {
		x.Start = x.Start.Add(30 * time.Minute)
	}); err != nil {
		t.Fatal(err)
	}
	if a.RenameCalls != 0 {
		t.Errorf("group renamed %d times on a schedule-only edit", a.RenameCalls)
	}

	if _, err := svc.Edit(ctx, e.UUID, func(x *event.ScheduledEvent) {
		x.Title = "Mythic raid"
	}); err != nil {
		t.Fatal(err)
	}
	if a.RenameCalls != 1 {
		t.Errorf("rename calls = %d after a title edit, want 1", a.RenameCalls)
	}
}

func TestEditAfterDeleteReportsUnknown(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, CreateParams{
		Title: "Raid", Start: time.Now().Add(time.Hour), Duration: time.Hour,
		Recurrence: event.Never, ChannelID: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, e.UUID); err != nil {
		t.Fatal(err)
	}

	_, err = svc.Edit(ctx, e.UUID, func(x *event.ScheduledEvent) {
		x.Title = "zombie"
	})
	if err != ErrUnknownEvent {
		t.Errorf("edit after delete = %v, want ErrUnknownEvent", err)
	}
}

func TestWorkerOneShotLifecycle(t *testing.T) {
	svc, a, st := newTestService(t)
	ctx := context.Background()

	start := time.Now().Add(-2 * time.Hour)
	e, err := svc.Create(ctx, CreateParams{
		Title: "Movie", Start: start, Duration: time.Hour,
		Recurrence: event.Never, ChannelID: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = a.AddGroupMember(ctx, e.GroupID, 555)

	snap, ok := svc.Events().PopDue(time.Now())
	if !ok {
		t.Fatal("due event not popped")
	}
	if err := svc.runEvent(ctx, snap); err != nil {
		t.Fatal(err)
	}

	// Card, ping, group and record must all be gone.
	if a.MessageCount() != 0 {
		t.Errorf("%d messages survived the one-shot run", a.MessageCount())
	}
	if gs, _ := a.ListGroups(ctx); len(gs) != 0 {
		t.Error("group survived the one-shot run")
	}
	if _, ok, _ := st.GetEvent(ctx, e.UUID.String()); ok {
		t.Error("record survived the one-shot run")
	}
	if svc.Events().Len() != 0 {
		t.Error("event still live after the one-shot run")
	}
}

func TestWorkerRecurringAdvancesAndRequeues(t *testing.T) {
	svc, a, st := newTestService(t)
	ctx := context.Background()

	start := time.Now().Add(-25 * time.Hour)
	e, err := svc.Create(ctx, CreateParams{
		Title: "Standup", Start: start, Duration: 15 * time.Minute,
		Recurrence: event.Daily, ChannelID: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = a.AddGroupMember(ctx, e.GroupID, 7)

	snap, ok := svc.Events().PopDue(time.Now())
	if !ok {
		t.Fatal("due event not popped")
	}
	if err := svc.runEvent(ctx, snap); err != nil {
		t.Fatal(err)
	}

	live, ok := svc.Events().Find(e.UUID)
	if !ok {
		t.Fatal("recurring event gone after run")
	}
	if !live.Start.After(time.Now()) {
		t.Errorf("next start %v not in the future", live.Start)
	}
	if live.PingMessageID != 0 {
		t.Error("ping id not cleared for the next occurrence")
	}
	r, _, _ := st.GetEvent(ctx, e.UUID.String())
	if !r.Start.Equal(live.Start) {
		t.Error("advanced start not persisted")
	}
	// Only the card remains; the ping was deleted during finalize.
	if a.MessageCount() != 1 {
		t.Errorf("message count = %d, want just the card", a.MessageCount())
	}
}

func TestNotifySkipsWhenPingAlreadyLive(t *testing.T) {
	svc, a, _ := newTestService(t)
	ctx := context.Background()

	ref, _ := a.SendText(ctx, transport.ChatTarget{ChatID: 1}, "old ping", nil)
	e := event.New("x", "", time.Now().Add(-time.Minute), time.Hour, event.Never, 1)
	e.PingMessageID = ref.MessageID

	before := a.MessageCount()
	svc.notify(ctx, e, logx.Nop())
	if a.MessageCount() != before {
		t.Error("notify re-pinged despite a live ping")
	}
}
