package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventbot/internal/config"
	"eventbot/internal/event"
	"eventbot/internal/scheduler"
	"eventbot/internal/storage"
	"eventbot/internal/transport"
	"eventbot/pkg/logx"
	"eventbot/pkg/textutil"
)

// StopFunc asks the process to exit; restart=true requests a supervisor
// restart (config reload), restart=false a clean shutdown.
type StopFunc func(restart bool)

// Deps is everything command handlers may touch.
type Deps struct {
	Log      logx.Logger
	Adapter  transport.Adapter
	Sched    *scheduler.Service
	Store    storage.Store
	Platform func() config.PlatformConfig
	Stop     StopFunc
	Now      func() time.Time
}

type handler struct {
	name      string
	help      string
	adminOnly bool
	ownerOnly bool
	run       func(ctx context.Context, req *request) error
}

// Dispatcher routes incoming updates to command handlers and card callbacks.
type Dispatcher struct {
	deps     Deps
	handlers map[string]*handler
}

func NewDispatcher(d Deps) *Dispatcher {
	if d.Now == nil {
		d.Now = time.Now
	}
	disp := &Dispatcher{deps: d, handlers: make(map[string]*handler)}
	disp.register()
	return disp
}

func (d *Dispatcher) register() {
	for _, h := range []*handler{
		{name: "help", help: "list available commands", run: d.cmdHelp},
		{name: "time", help: "show the bot's current time", run: d.cmdTime},
		{name: "event", help: "manage scheduled events: list, create, edit, delete, refreshembed, export", adminOnly: true, run: d.cmdEvent},
		{name: "say", help: "repeat the rest of the message", adminOnly: true, run: d.cmdSay},
		{name: "config", help: "show or change chat settings: show, channel <#id>", adminOnly: true, run: d.cmdConfig},
		{name: "admin", help: "manage chat admins: list, add <@user>, remove <@user>", adminOnly: true, run: d.cmdAdmin},
		{name: "cleangroups", help: "delete orphaned notification groups", ownerOnly: true, run: d.cmdCleanGroups},
		{name: "reload", help: "restart the bot process", ownerOnly: true, run: d.cmdReload},
		{name: "shutdown", help: "stop the bot", ownerOnly: true, run: d.cmdShutdown},
	} {
		d.handlers[h.name] = h
	}
}

// Run consumes updates until ctx is canceled. Handlers run inline; a slow
// platform call delays later updates, which is acceptable at this bot's scale.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			switch {
			case u.Kind == transport.UpdateMessage && u.Message != nil:
				d.handleMessage(ctx, *u.Message)
			case u.Kind == transport.UpdateCallback && u.Callback != nil:
				d.handleCallback(ctx, *u.Callback)
			}
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg transport.Message) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	prefix := d.deps.Platform().CommandPrefix
	tok := NewTokenizer(msg.Text, prefix)
	first, err := tok.Next()
	if err != nil || first.Kind != Command {
		return
	}
	h, ok := d.handlers[first.Value]
	if !ok {
		// Unknown commands are ignored, not answered, so the bot stays
		// quiet in busy chats.
		return
	}

	req := &request{d: d, msg: msg, tok: tok}
	if h.ownerOnly && !d.isOwner(msg.FromID) {
		return
	}
	if h.adminOnly && !d.isAdmin(ctx, msg) {
		_ = req.reply(ctx, "You need to be an event admin to do that.")
		return
	}

	log := d.deps.Log.With(
		logx.String("cmd", first.Value),
		logx.Int64("chat", msg.ChatID),
		logx.Int64("from", msg.FromID))
	log.Debug("command received")
	if err := h.run(ctx, req); err != nil {
		log.Warn("command failed", logx.Err(err))
		_ = req.reply(ctx, "Sorry, that didn't work: "+err.Error())
	}
}

// handleCallback routes card-button taps to the membership toggle.
func (d *Dispatcher) handleCallback(ctx context.Context, cb transport.Callback) {
	if !strings.HasPrefix(cb.Data, event.ToggleCallbackPrefix) {
		return
	}
	answer := d.toggleMembership(ctx, cb)
	if err := d.deps.Adapter.AnswerCallback(ctx, cb.ID, answer); err != nil {
		d.deps.Log.Warn("answer callback failed", logx.Err(err))
	}
}

func (d *Dispatcher) toggleMembership(ctx context.Context, cb transport.Callback) string {
	raw := strings.TrimPrefix(cb.Data, event.ToggleCallbackPrefix)
	id, err := uuid.Parse(raw)
	if err != nil {
		return "This event is no longer available."
	}
	e, ok := d.deps.Sched.Events().Find(id)
	if !ok || e.GroupID == 0 {
		return "This event is no longer available."
	}

	member, err := d.deps.Adapter.IsGroupMember(ctx, e.GroupID, cb.FromID)
	if err != nil {
		d.deps.Log.Warn("membership check failed", logx.Err(err))
		return "Something went wrong, try again."
	}
	if member {
		if err := d.deps.Adapter.RemoveGroupMember(ctx, e.GroupID, cb.FromID); err != nil {
			return "Something went wrong, try again."
		}
		return "You will no longer be notified about " + e.Title + "."
	}
	if err := d.deps.Adapter.AddGroupMember(ctx, e.GroupID, cb.FromID); err != nil {
		return "Something went wrong, try again."
	}
	return "You will be notified when " + e.Title + " starts."
}

func (d *Dispatcher) isOwner(userID int64) bool {
	for _, id := range d.deps.Platform().OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (d *Dispatcher) isAdmin(ctx context.Context, msg transport.Message) bool {
	if d.isOwner(msg.FromID) {
		return true
	}
	cs, ok, err := d.deps.Store.ChatSettings(ctx, msg.ChatID)
	if err != nil {
		d.deps.Log.Warn("chat settings lookup failed", logx.Err(err))
		return false
	}
	if !ok {
		return false
	}
	for _, id := range cs.AdminIDs {
		if id == msg.FromID {
			return true
		}
	}
	return false
}

// eventChannel is where cards and pings for this chat go: the configured
// event channel when set, otherwise the chat the command came from.
func (d *Dispatcher) eventChannel(ctx context.Context, chatID int64) int64 {
	cs, ok, err := d.deps.Store.ChatSettings(ctx, chatID)
	if err == nil && ok && cs.EventChannelID != 0 {
		return cs.EventChannelID
	}
	return chatID
}

// request carries one command invocation through its handler.
type request struct {
	d   *Dispatcher
	msg transport.Message
	tok *Tokenizer
}

// reply sends plain text back to the originating chat, split into
// platform-sized chunks.
func (r *request) reply(ctx context.Context, text string) error {
	return r.send(ctx, text, nil)
}

func (r *request) replyHTML(ctx context.Context, text string) error {
	return r.send(ctx, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
}

func (r *request) send(ctx context.Context, text string, opt *transport.SendOptions) error {
	to := transport.ChatTarget{ChatID: r.msg.ChatID}
	for _, chunk := range textutil.Split(text, textutil.MessageLimit) {
		if _, err := r.d.deps.Adapter.SendText(ctx, to, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) cmdHelp(ctx context.Context, req *request) error {
	if req.tok.HasNext() {
		t, err := req.tok.Next()
		if err == nil {
			if h, ok := d.handlers[strings.ToLower(t.Value)]; ok && (!h.ownerOnly || d.isOwner(req.msg.FromID)) {
				prefix := d.deps.Platform().CommandPrefix
				return req.reply(ctx, fmt.Sprintf("%s%s - %s", prefix, h.name, h.help))
			}
		}
		return req.reply(ctx, "No such command.")
	}

	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	prefix := d.deps.Platform().CommandPrefix
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range names {
		h := d.handlers[name]
		if h.ownerOnly && !d.isOwner(req.msg.FromID) {
			continue
		}
		fmt.Fprintf(&b, "%s%s - %s\n", prefix, h.name, h.help)
	}
	return req.reply(ctx, b.String())
}

func (d *Dispatcher) cmdTime(ctx context.Context, req *request) error {
	return req.reply(ctx, "It is currently "+event.PrettyDate(d.deps.Now()))
}

// cmdSay repeats the rest of the message and removes the invoking one, so
// the bot appears to speak on its own.
func (d *Dispatcher) cmdSay(ctx context.Context, req *request) error {
	rest, err := req.tok.Remaining()
	if err != nil {
		return fmt.Errorf("nothing to say")
	}
	if req.msg.ID != 0 {
		ref := transport.MessageRef{ChatID: req.msg.ChatID, MessageID: req.msg.ID}
		if err := d.deps.Adapter.DeleteMessage(ctx, ref); err != nil {
			d.deps.Log.Debug("delete say invocation failed", logx.Err(err))
		}
	}
	return req.reply(ctx, rest.Value)
}

func (d *Dispatcher) cmdReload(ctx context.Context, req *request) error {
	if err := req.reply(ctx, "Restarting..."); err != nil {
		d.deps.Log.Warn("reload ack failed", logx.Err(err))
	}
	d.deps.Stop(true)
	return nil
}

func (d *Dispatcher) cmdShutdown(ctx context.Context, req *request) error {
	if err := req.reply(ctx, "Shutting down. Bye!"); err != nil {
		d.deps.Log.Warn("shutdown ack failed", logx.Err(err))
	}
	d.deps.Stop(false)
	return nil
}
