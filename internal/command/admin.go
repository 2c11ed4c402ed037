package command

import (
	"context"
	"fmt"
	"strings"

	"eventbot/internal/event"
	"eventbot/internal/transport"
	"eventbot/pkg/logx"
)

// cmdConfig shows or changes the chat's settings.
func (d *Dispatcher) cmdConfig(ctx context.Context, req *request) error {
	if !req.tok.HasNext() {
		return d.configShow(ctx, req)
	}
	sub, err := req.tok.Next()
	if err != nil {
		return err
	}
	switch strings.ToLower(sub.Value) {
	case "show":
		return d.configShow(ctx, req)
	case "channel":
		return d.configChannel(ctx, req)
	default:
		return fmt.Errorf("usage: config [show|channel <#channel>]")
	}
}

func (d *Dispatcher) configShow(ctx context.Context, req *request) error {
	cs, ok, err := d.deps.Store.ChatSettings(ctx, req.msg.ChatID)
	if err != nil {
		return err
	}
	if !ok {
		return req.reply(ctx, "Nothing configured for this chat yet; events go to the chat they are created in.")
	}

	var b strings.Builder
	b.WriteString("Settings for this chat:\n")
	if cs.EventChannelID != 0 {
		fmt.Fprintf(&b, "event channel: %s\n", transport.ChannelMention(cs.EventChannelID))
	} else {
		b.WriteString("event channel: not set (the chat a command comes from)\n")
	}
	if len(cs.AdminIDs) == 0 {
		b.WriteString("event admins: none (bot owners only)")
	} else {
		b.WriteString("event admins:")
		for _, id := range cs.AdminIDs {
			b.WriteString(" " + transport.UserMention(id))
		}
	}
	return req.reply(ctx, b.String())
}

// configChannel points event cards and pings at a channel. The channel is
// probed first so a typo does not silently blackhole events.
func (d *Dispatcher) configChannel(ctx context.Context, req *request) error {
	t, err := req.tok.Next()
	if err != nil || t.Kind != ChannelMention && t.Kind != Number {
		return fmt.Errorf("usage: config channel <#channel>")
	}
	channelID := t.Entity
	if t.Kind == Number {
		channelID = t.Num
	}

	ch, err := d.deps.Adapter.FetchChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("cannot use that channel: %w", err)
	}

	cs, _, err := d.deps.Store.ChatSettings(ctx, req.msg.ChatID)
	if err != nil {
		return err
	}
	cs.ChatID = req.msg.ChatID
	cs.EventChannelID = ch.ID
	if err := d.deps.Store.PutChatSettings(ctx, cs); err != nil {
		return err
	}
	return req.reply(ctx, fmt.Sprintf("Events will be posted to %s.", ch.Title))
}

// cmdAdmin manages the per-chat admin list. Only bot owners may change it,
// so a chat admin cannot promote others.
func (d *Dispatcher) cmdAdmin(ctx context.Context, req *request) error {
	if !req.tok.HasNext() {
		return d.adminList(ctx, req)
	}
	sub, err := req.tok.Next()
	if err != nil {
		return err
	}
	switch strings.ToLower(sub.Value) {
	case "list":
		return d.adminList(ctx, req)
	case "add":
		return d.adminChange(ctx, req, true)
	case "remove":
		return d.adminChange(ctx, req, false)
	default:
		return fmt.Errorf("usage: admin [list|add <@user>|remove <@user>]")
	}
}

func (d *Dispatcher) adminList(ctx context.Context, req *request) error {
	cs, ok, err := d.deps.Store.ChatSettings(ctx, req.msg.ChatID)
	if err != nil {
		return err
	}
	if !ok || len(cs.AdminIDs) == 0 {
		return req.reply(ctx, "No event admins are set; only the bot owners can manage events here.")
	}
	parts := make([]string, len(cs.AdminIDs))
	for i, id := range cs.AdminIDs {
		parts[i] = transport.UserMention(id)
	}
	return req.reply(ctx, "Event admins: "+strings.Join(parts, " "))
}

func (d *Dispatcher) adminChange(ctx context.Context, req *request, add bool) error {
	if !d.isOwner(req.msg.FromID) {
		return fmt.Errorf("only a bot owner can change the admin list")
	}
	t, err := req.tok.Next()
	if err != nil || t.Kind != UserMention {
		return fmt.Errorf("usage: admin %s <@user>", map[bool]string{true: "add", false: "remove"}[add])
	}

	cs, _, err := d.deps.Store.ChatSettings(ctx, req.msg.ChatID)
	if err != nil {
		return err
	}
	cs.ChatID = req.msg.ChatID
	cs.AdminIDs = updateIDSet(cs.AdminIDs, t.Entity, add)
	if err := d.deps.Store.PutChatSettings(ctx, cs); err != nil {
		return err
	}
	if add {
		return req.reply(ctx, fmt.Sprintf("%s can now manage events here.", transport.UserMention(t.Entity)))
	}
	return req.reply(ctx, fmt.Sprintf("%s can no longer manage events here.", transport.UserMention(t.Entity)))
}

func updateIDSet(ids []int64, id int64, add bool) []int64 {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if add {
		out = append(out, id)
	}
	return out
}

// cmdCleanGroups deletes notification groups that carry an event uuid suffix
// but no longer belong to a live event, e.g. leftovers from crashes between a
// group creation and the first persist.
func (d *Dispatcher) cmdCleanGroups(ctx context.Context, req *request) error {
	groups, err := d.deps.Adapter.ListGroups(ctx)
	if err != nil {
		return err
	}

	live := make(map[string]bool)
	for _, e := range d.deps.Sched.Events().List() {
		live[e.GroupName()] = true
	}

	removed := 0
	for _, g := range groups {
		if !event.IsEventGroupName(g.Name) || live[g.Name] {
			continue
		}
		if err := d.deps.Adapter.DeleteGroup(ctx, g.ID); err != nil {
			d.deps.Log.Warn("orphan group delete failed", logx.Err(err), logx.String("group", g.Name))
			continue
		}
		removed++
	}
	return req.reply(ctx, fmt.Sprintf("Removed %d orphaned notification groups.", removed))
}
