// Package telegram adapts the bot to the Telegram Bot API via telebot.
//
// Telegram has no native opt-in mention target, so notification groups are
// emulated: membership lives in the local group registry and GroupMention
// renders one invisible tg://user link per member.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"eventbot/internal/runtime/supervisor"
	"eventbot/internal/storage"
	kit "eventbot/internal/transport"
	"eventbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// mentionLimit caps how many members one GroupMention renders; Telegram
// silently stops notifying somewhere above this anyway.
const mentionLimit = 50

type Adapter struct {
	cfg    Config
	log    logx.Logger
	groups storage.GroupStore

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns the poll loop and the drop reporter between Start and Stop.
	sup *supervisor.Supervisor

	// droppedUpdates counts updates discarded because the consumer lagged
	// behind the poll loop; reported periodically instead of per update.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger, groups storage.GroupStore) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, groups: groups, bot: b}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel; Start may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				FromID:    cb.Sender.ID,
				ChatID:    m.Chat.ID,
				MessageID: m.ID,
				// telebot prefixes callback data with "\f".
				Data: strings.TrimPrefix(cb.Data, "\f"),
			},
		})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "telegram"))))
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
				}
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// telebot's Start blocks until Stop; if it exits while the context is
	// still live something went wrong and the restart loop brings it back.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() == nil {
			return errors.New("telegram poller exited unexpectedly")
		}
		return nil
	})
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	sup.Cancel()

	// Keep shutdown snappy even if the long-poll is mid-request.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

const telegramTextLimit = 4000

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitTelegramText(text, telegramTextLimit)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	chat := &tele.Chat{ID: to.ChatID}
	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
		}
		// Markup goes on the first chunk only.
		if i == 0 {
			sendOpt.ReplyMarkup = buildMarkup(opt.Buttons)
		}
		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	chunks := splitTelegramText(text, telegramTextLimit)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ReplyMarkup:           buildMarkup(opt.Buttons),
	}
	if _, err := a.bot.Edit(m, chunks[0], sendOpt); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return kit.ErrNotModified
		}
		return err
	}
	// Overflow goes out as plain follow-up messages.
	for _, chunk := range chunks[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		followOpt := &tele.SendOptions{ParseMode: opt.ParseMode, DisableWebPagePreview: opt.DisablePreview}
		if _, err := a.bot.Send(&tele.Chat{ID: ref.ChatID}, chunk, followOpt); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Delete(&tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}})
}

// FetchMessage probes for existence by forwarding the message to its own chat
// and deleting the copy; the Bot API has no direct message lookup.
func (a *Adapter) FetchMessage(ctx context.Context, ref kit.MessageRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	src := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	copyMsg, err := a.bot.Forward(&tele.Chat{ID: ref.ChatID}, src)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if derr := a.bot.Delete(copyMsg); derr != nil {
		a.log.Warn("probe forward cleanup failed", logx.Err(derr))
	}
	return true, nil
}

func (a *Adapter) FetchChannel(ctx context.Context, id int64) (*kit.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chat, err := a.bot.ChatByID(id)
	if err != nil {
		return nil, err
	}
	title := chat.Title
	if title == "" {
		title = strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}
	return &kit.Channel{ID: chat.ID, Title: title}, nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// ---- notification groups (registry-backed) ----

func (a *Adapter) CreateGroup(ctx context.Context, name string) (kit.Group, error) {
	id, err := a.groups.CreateGroup(ctx, name)
	if err != nil {
		return kit.Group{}, err
	}
	return kit.Group{ID: id, Name: name}, nil
}

func (a *Adapter) FindGroup(ctx context.Context, name string) (kit.Group, bool, error) {
	row, ok, err := a.groups.GroupByName(ctx, name)
	if err != nil || !ok {
		return kit.Group{}, false, err
	}
	return kit.Group{ID: row.ID, Name: row.Name}, true, nil
}

func (a *Adapter) ListGroups(ctx context.Context) ([]kit.Group, error) {
	rows, err := a.groups.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]kit.Group, len(rows))
	for i, r := range rows {
		out[i] = kit.Group{ID: r.ID, Name: r.Name}
	}
	return out, nil
}

func (a *Adapter) RenameGroup(ctx context.Context, id int64, name string) error {
	return a.groups.RenameGroup(ctx, id, name)
}

func (a *Adapter) DeleteGroup(ctx context.Context, id int64) error {
	return a.groups.DeleteGroup(ctx, id)
}

func (a *Adapter) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	return a.groups.AddGroupMember(ctx, groupID, userID)
}

func (a *Adapter) RemoveGroupMember(ctx context.Context, groupID, userID int64) error {
	return a.groups.RemoveGroupMember(ctx, groupID, userID)
}

func (a *Adapter) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	return a.groups.IsGroupMember(ctx, groupID, userID)
}

// GroupMention renders invisible tg://user links, one per member, so sending
// the result (as HTML) notifies everyone who opted in. Membership beyond
// mentionLimit is silently not notified.
func (a *Adapter) GroupMention(ctx context.Context, groupID int64) (string, error) {
	members, err := a.groups.GroupMembers(ctx, groupID)
	if err != nil {
		return "", err
	}
	if len(members) > mentionLimit {
		a.log.Warn("group mention truncated", logx.Int64("group", groupID), logx.Int("members", len(members)))
		members = members[:mentionLimit]
	}
	var b strings.Builder
	for _, id := range members {
		fmt.Fprintf(&b, "<a href=\"tg://user?id=%d\">⁠</a>", id)
	}
	return b.String(), nil
}

func buildMarkup(buttons [][]kit.Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tele.InlineButton, 0, len(buttons))
	for _, row := range buttons {
		btns := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tele.InlineButton{Text: b.Text, Data: b.Data})
		}
		rows = append(rows, btns)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func isNotFound(err error) bool {
	s := err.Error()
	return strings.Contains(s, "not found") || strings.Contains(s, "MESSAGE_ID_INVALID")
}

// splitTelegramText splits long messages on newline boundaries near the
// window end, falling back to a hard cut.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					if i-start >= limit/3 {
						end = i + 1
					}
					break
				}
			}
		}
		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
