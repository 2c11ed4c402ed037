package recovery

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"eventbot/internal/event"
	"eventbot/internal/scheduler"
	"eventbot/internal/storage"
	"eventbot/internal/transport"
	"eventbot/internal/transport/fake"
	"eventbot/pkg/logx"
)

type fixture struct {
	loader  *Loader
	svc     *scheduler.Service
	adapter *fake.Adapter
	store   storage.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	a := fake.New()
	svc := scheduler.New(logx.Nop(), a, event.NewStore(), st, nil, scheduler.Config{})
	return &fixture{
		loader:  New(logx.Nop(), a, st, svc, 3, time.Millisecond),
		svc:     svc,
		adapter: a,
		store:   st,
	}
}

// seed persists a record plus its platform-side card and group, the way a
// previous process would have left them.
func (f *fixture) seed(t *testing.T, e *event.ScheduledEvent) {
	t.Helper()
	ctx := context.Background()
	ref, err := f.adapter.SendText(ctx, transport.ChatTarget{ChatID: e.ChannelID}, "card", nil)
	if err != nil {
		t.Fatal(err)
	}
	e.MessageID = ref.MessageID
	if _, err := f.adapter.CreateGroup(ctx, e.GroupName()); err != nil {
		t.Fatal(err)
	}
	if err := f.store.PutEvent(ctx, e.Record()); err != nil {
		t.Fatal(err)
	}
}

func TestRecoverUpcomingEvent(t *testing.T) {
	f := newFixture(t)
	e := event.New("Raid", "", time.Now().Add(2*time.Hour), time.Hour, event.Never, 1)
	f.seed(t, e)

	if err := f.loader.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, ok := f.svc.Events().Find(e.UUID)
	if !ok {
		t.Fatal("upcoming event not loaded")
	}
	if got.GroupID == 0 {
		t.Error("group not re-resolved by name")
	}
	if got.MessageID != e.MessageID {
		t.Error("existing card replaced instead of kept")
	}
}

func TestRecoverFinishedOneShotIsRetired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := event.New("Movie", "", time.Now().Add(-3*time.Hour), time.Hour, event.Never, 1)
	f.seed(t, e)
	// A stale ping from the interrupted run.
	ref, _ := f.adapter.SendText(ctx, transport.ChatTarget{ChatID: 1}, "ping", nil)
	e.PingMessageID = ref.MessageID
	if err := f.store.PutEvent(ctx, e.Record()); err != nil {
		t.Fatal(err)
	}

	if err := f.loader.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if f.svc.Events().Len() != 0 {
		t.Error("finished one-shot loaded anyway")
	}
	if _, ok, _ := f.store.GetEvent(ctx, e.UUID.String()); ok {
		t.Error("record not deleted")
	}
	if f.adapter.MessageCount() != 0 {
		t.Error("card or ping survived retirement")
	}
	if gs, _ := f.adapter.ListGroups(ctx); len(gs) != 0 {
		t.Error("group survived retirement")
	}
}

func TestRecoverMissedRecurringIsAdvancedNotFired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := time.Now().Add(-8 * 24 * time.Hour)
	e := event.New("Standup", "", start, 15*time.Minute, event.Weekly, 1)
	f.seed(t, e)

	if err := f.loader.Run(ctx); err != nil {
		t.Fatal(err)
	}

	got, ok := f.svc.Events().Find(e.UUID)
	if !ok {
		t.Fatal("recurring event not reloaded")
	}
	if !got.Start.After(time.Now()) {
		t.Errorf("start %v not advanced past now", got.Start)
	}
	r, _, _ := f.store.GetEvent(ctx, e.UUID.String())
	if !r.Start.Equal(got.Start) {
		t.Error("advanced start not persisted")
	}
}

func TestRecoverInProgressKeepsLivePing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := event.New("Raid", "", time.Now().Add(-10*time.Minute), time.Hour, event.Never, 1)
	f.seed(t, e)
	ref, _ := f.adapter.SendText(ctx, transport.ChatTarget{ChatID: 1}, "ping", nil)
	e.PingMessageID = ref.MessageID
	if err := f.store.PutEvent(ctx, e.Record()); err != nil {
		t.Fatal(err)
	}

	if err := f.loader.Run(ctx); err != nil {
		t.Fatal(err)
	}

	got, ok := f.svc.Events().Find(e.UUID)
	if !ok {
		t.Fatal("in-progress event not loaded")
	}
	if got.PingMessageID != ref.MessageID {
		t.Error("live ping not kept for the resumed run")
	}
}

func TestRecoverInProgressClearsLostPing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := event.New("Raid", "", time.Now().Add(-10*time.Minute), time.Hour, event.Never, 1)
	f.seed(t, e)
	e.PingMessageID = 9999 // never sent
	if err := f.store.PutEvent(ctx, e.Record()); err != nil {
		t.Fatal(err)
	}

	if err := f.loader.Run(ctx); err != nil {
		t.Fatal(err)
	}

	got, _ := f.svc.Events().Find(e.UUID)
	if got == nil || got.PingMessageID != 0 {
		t.Errorf("lost ping id not cleared: %+v", got)
	}
}

func TestRecoverFutureStartDropsStalePing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := event.New("Standup", "", time.Now().Add(3*time.Hour), 15*time.Minute, event.Weekly, 1)
	f.seed(t, e)
	// A ping left over from the occurrence that ran before the restart.
	ref, _ := f.adapter.SendText(ctx, transport.ChatTarget{ChatID: 1}, "ping", nil)
	e.PingMessageID = ref.MessageID
	if err := f.store.PutEvent(ctx, e.Record()); err != nil {
		t.Fatal(err)
	}

	if err := f.loader.Run(ctx); err != nil {
		t.Fatal(err)
	}

	got, ok := f.svc.Events().Find(e.UUID)
	if !ok {
		t.Fatal("future event not loaded")
	}
	if got.PingMessageID != 0 {
		t.Errorf("stale ping reference kept: %d", got.PingMessageID)
	}
	if exists, _ := f.adapter.FetchMessage(ctx, ref); exists {
		t.Error("stale ping message not deleted")
	}
	r, _, _ := f.store.GetEvent(ctx, e.UUID.String())
	if r.PingMessageID != 0 {
		t.Error("stale ping id re-persisted")
	}
}

func TestRecoverRebuildsLostArtifacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Record only; card and group are gone.
	e := event.New("Raid", "", time.Now().Add(time.Hour), time.Hour, event.Never, 1)
	e.MessageID = 1234
	if err := f.store.PutEvent(ctx, e.Record()); err != nil {
		t.Fatal(err)
	}

	if err := f.loader.Run(ctx); err != nil {
		t.Fatal(err)
	}

	got, ok := f.svc.Events().Find(e.UUID)
	if !ok {
		t.Fatal("event not loaded")
	}
	if got.MessageID == 0 || got.MessageID == 1234 {
		t.Errorf("card not re-sent: message id %d", got.MessageID)
	}
	if got.GroupID == 0 {
		t.Error("group not recreated")
	}
	r, _, _ := f.store.GetEvent(ctx, e.UUID.String())
	if r.MessageID != got.MessageID {
		t.Error("new card id not persisted")
	}
}

func TestRecoverUnreachableChannelRetiresEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := event.New("Raid", "", time.Now().Add(time.Hour), time.Hour, event.Weekly, 42)
	f.seed(t, e)
	f.adapter.LostChannels = map[int64]bool{42: true}

	if err := f.loader.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if f.svc.Events().Len() != 0 {
		t.Error("event with lost channel loaded anyway")
	}
	if _, ok, _ := f.store.GetEvent(ctx, e.UUID.String()); ok {
		t.Error("record not deleted")
	}
	if gs, _ := f.adapter.ListGroups(ctx); len(gs) != 0 {
		t.Error("group survived retirement")
	}
}

func TestRecoverSkipsCorruptRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := storage.EventRecord{
		UUID: "not-a-uuid", Start: time.Now(), Duration: time.Hour,
		Recurrence: "NEVER", ChannelID: 1, MessageID: 1,
	}
	if err := f.store.PutEvent(ctx, bad); err != nil {
		t.Fatal(err)
	}
	good := event.New("ok", "", time.Now().Add(time.Hour), time.Hour, event.Never, 1)
	f.seed(t, good)

	if err := f.loader.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if f.svc.Events().Len() != 1 {
		t.Errorf("loaded %d events, want the one good record", f.svc.Events().Len())
	}
}
