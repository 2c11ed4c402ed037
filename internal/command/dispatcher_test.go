package command

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eventbot/internal/config"
	"eventbot/internal/event"
	"eventbot/internal/scheduler"
	"eventbot/internal/storage"
	"eventbot/internal/transport"
	"eventbot/internal/transport/fake"
	"eventbot/pkg/logx"
)

const (
	ownerID    = int64(1)
	strangerID = int64(2)
	chatID     = int64(-500)
)

type env struct {
	disp    *Dispatcher
	adapter *fake.Adapter
	sched   *scheduler.Service
	store   storage.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	a := fake.New()
	sched := scheduler.New(logx.Nop(), a, event.NewStore(), st, nil, scheduler.Config{
		GroupLookupRetries: 3,
		GroupLookupDelay:   time.Millisecond,
	})
	disp := NewDispatcher(Deps{
		Log:     logx.Nop(),
		Adapter: a,
		Sched:   sched,
		Store:   st,
		Platform: func() config.PlatformConfig {
			return config.PlatformConfig{CommandPrefix: "cc!", OwnerUserIDs: []int64{ownerID}}
		},
		Stop: func(restart bool) {},
	})
	return &env{disp: disp, adapter: a, sched: sched, store: st}
}

func (e *env) say(t *testing.T, from int64, text string) {
	t.Helper()
	e.disp.handleMessage(context.Background(), transport.Message{
		ID: 1, ChatID: chatID, FromID: from, Text: text, IsGroup: true,
	})
}

// lastChatText returns the newest message the fake adapter holds for chatID.
func (e *env) lastChatText() string {
	last := transport.MessageRef{}
	for ref := range e.adapter.Messages {
		if ref.ChatID == chatID && ref.MessageID > last.MessageID {
			last = ref
		}
	}
	return e.adapter.Text(last)
}

func TestCreateListDeleteFlow(t *testing.T) {
	e := newEnv(t)

	e.say(t, ownerID, `cc!event create "Movie night" on tomorrow at 7:30 pm lasting 2 hours with description bring snacks`)

	events := e.sched.Events().List()
	if len(events) != 1 {
		t.Fatalf("%d events after create", len(events))
	}
	ev := events[0]
	if ev.Title != "Movie night" || ev.Details != "bring snacks" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Start.Hour() != 19 || ev.Start.Minute() != 30 {
		t.Errorf("start = %v, want 19:30", ev.Start)
	}
	if ev.Duration != 2*time.Hour {
		t.Errorf("duration = %v", ev.Duration)
	}
	if ev.Recurrence != event.Never {
		t.Errorf("recurrence = %v", ev.Recurrence)
	}

	e.say(t, ownerID, "cc!event list")
	if out := e.lastChatText(); !strings.Contains(out, "Movie night") || !strings.Contains(out, ev.UUID.String()) {
		t.Errorf("list output:\n%s", out)
	}

	e.say(t, ownerID, "cc!event delete "+ev.UUID.String())
	if e.sched.Events().Len() != 0 {
		t.Error("event survived delete")
	}
}

func TestCreateRejectsPastStart(t *testing.T) {
	e := newEnv(t)
	e.disp.deps.Now = func() time.Time {
		return time.Date(2025, time.March, 10, 23, 0, 0, 0, time.UTC)
	}

	e.say(t, ownerID, "cc!event create Standup at 9:00")
	if e.sched.Events().Len() != 0 {
		t.Fatal("one-shot event created in the past")
	}
	if out := e.lastChatText(); !strings.Contains(out, "past") {
		t.Errorf("no error reply, got:\n%s", out)
	}
}

func TestCreateRecurringInPastAdvances(t *testing.T) {
	e := newEnv(t)
	e.disp.deps.Now = func() time.Time {
		return time.Date(2025, time.March, 10, 23, 0, 0, 0, time.UTC)
	}

	e.say(t, ownerID, "cc!event create Standup at 9:00 repeating daily")
	events := e.sched.Events().List()
	if len(events) != 1 {
		t.Fatal("recurring event not created")
	}
	want := time.Date(2025, time.March, 11, 9, 0, 0, 0, time.UTC)
	if !events[0].Start.Equal(want) {
		t.Errorf("start = %v, want %v", events[0].Start, want)
	}
}

func TestEditMergesClauses(t *testing.T) {
	e := newEnv(t)

	e.say(t, ownerID, `cc!event create Raid on december 30 2030 at 20:00`)
	events := e.sched.Events().List()
	if len(events) != 1 {
		t.Fatal("create failed")
	}
	id := events[0].UUID

	e.say(t, ownerID, "cc!event edit "+id.String()+` named "Mythic raid" at 21:30 repeating weekly`)

	got, _ := e.sched.Events().Find(id)
	if got.Title != "Mythic raid" {
		t.Errorf("title = %q", got.Title)
	}
	// The date clause was omitted, so the day must be preserved.
	if got.Start.Day() != 30 || got.Start.Month() != time.December {
		t.Errorf("date lost: %v", got.Start)
	}
	if got.Start.Hour() != 21 || got.Start.Minute() != 30 {
		t.Errorf("time not updated: %v", got.Start)
	}
	if got.Recurrence != event.Weekly {
		t.Errorf("recurrence = %v", got.Recurrence)
	}
}

func TestAdminGate(t *testing.T) {
	e := newEnv(t)

	e.say(t, strangerID, "cc!event create Sneaky at 9:00")
	if e.sched.Events().Len() != 0 {
		t.Fatal("non-admin created an event")
	}
	if out := e.lastChatText(); !strings.Contains(out, "admin") {
		t.Errorf("no permission reply, got:\n%s", out)
	}

	// Owner promotes the stranger, who can then create events.
	e.say(t, ownerID, "cc!admin add <@2>")
	e.say(t, strangerID, "cc!event create Allowed on december 30 2030 at 9:00")
	if e.sched.Events().Len() != 1 {
		t.Error("promoted admin still blocked")
	}
}

func TestOwnerOnlyCommandsAreSilentForOthers(t *testing.T) {
	e := newEnv(t)
	stopped := false
	e.disp.deps.Stop = func(restart bool) { stopped = true }

	before := e.adapter.MessageCount()
	e.say(t, strangerID, "cc!shutdown")
	if stopped {
		t.Fatal("stranger stopped the bot")
	}
	if e.adapter.MessageCount() != before {
		t.Error("owner-only refusal was answered")
	}
}

func TestShutdownAndReload(t *testing.T) {
	e := newEnv(t)
	var restart *bool
	e.disp.deps.Stop = func(r bool) { restart = &r }

	e.say(t, ownerID, "cc!shutdown")
	if restart == nil || *restart {
		t.Fatal("shutdown did not request a plain stop")
	}

	restart = nil
	e.say(t, ownerID, "cc!reload")
	if restart == nil || !*restart {
		t.Fatal("reload did not request a restart")
	}
}

func TestUnknownAndUnprefixedMessagesAreIgnored(t *testing.T) {
	e := newEnv(t)

	before := e.adapter.MessageCount()
	e.say(t, ownerID, "hello everyone")
	e.say(t, ownerID, "cc!frobnicate")
	e.say(t, ownerID, "   ")
	if e.adapter.MessageCount() != before {
		t.Error("chatter was answered")
	}
}

func TestCallbackTogglesMembership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.say(t, ownerID, "cc!event create Raid on december 30 2030 at 20:00")
	ev := e.sched.Events().List()[0]

	cb := transport.Callback{ID: "cb1", FromID: strangerID, ChatID: chatID, Data: ev.ToggleCallback()}
	e.disp.handleCallback(ctx, cb)
	if member, _ := e.adapter.IsGroupMember(ctx, ev.GroupID, strangerID); !member {
		t.Fatal("first tap did not join the group")
	}
	e.disp.handleCallback(ctx, cb)
	if member, _ := e.adapter.IsGroupMember(ctx, ev.GroupID, strangerID); member {
		t.Fatal("second tap did not leave the group")
	}
}

func TestSayEchoesRemainder(t *testing.T) {
	e := newEnv(t)
	e.say(t, ownerID, "cc!say hello   there")
	if out := e.lastChatText(); out != "hello   there" {
		t.Errorf("say output = %q", out)
	}
}

func TestConfigChannelRedirectsEvents(t *testing.T) {
	e := newEnv(t)

	e.say(t, ownerID, "cc!config channel <#777>")
	e.say(t, ownerID, "cc!event create Raid on december 30 2030 at 20:00")

	ev := e.sched.Events().List()[0]
	if ev.ChannelID != 777 {
		t.Errorf("event channel = %d, want 777", ev.ChannelID)
	}
}
