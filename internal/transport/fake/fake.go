// Package fake is an in-memory transport.Adapter for tests.
package fake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"eventbot/internal/transport"
)

// Sent is one recorded outgoing message.
type Sent struct {
	ChatID int64
	ID     int
	Text   string
	Opt    *transport.SendOptions
}

// Adapter implements transport.Adapter against in-memory state. All methods
// are safe for concurrent use.
type Adapter struct {
	mu      sync.Mutex
	nextMsg int
	nextGrp int64

	Messages map[transport.MessageRef]*Sent
	Groups   map[int64]*groupState

	// FailSend makes SendText fail when set.
	FailSend error
	// LostChannels makes FetchChannel fail for the listed ids.
	LostChannels map[int64]bool
	// RenameCalls counts RenameGroup invocations.
	RenameCalls int
	// Updates is the channel Start hands updates to; tests push into In.
	In chan transport.Update

	stopped bool
}

type groupState struct {
	name    string
	members map[int64]bool
}

func New() *Adapter {
	return &Adapter{
		Messages: make(map[transport.MessageRef]*Sent),
		Groups:   make(map[int64]*groupState),
		In:       make(chan transport.Update, 16),
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-a.In:
			if !ok {
				return nil
			}
			out <- u
		}
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailSend != nil {
		return transport.MessageRef{}, a.FailSend
	}
	a.nextMsg++
	ref := transport.MessageRef{ChatID: to.ChatID, MessageID: a.nextMsg}
	a.Messages[ref] = &Sent{ChatID: to.ChatID, ID: a.nextMsg, Text: text, Opt: opt}
	return ref, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.Messages[ref]
	if !ok {
		return fmt.Errorf("fake: edit of unknown message %v", ref)
	}
	if m.Text == text {
		return transport.ErrNotModified
	}
	m.Text = text
	m.Opt = opt
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.Messages[ref]; !ok {
		return fmt.Errorf("fake: delete of unknown message %v", ref)
	}
	delete(a.Messages, ref)
	return nil
}

func (a *Adapter) FetchMessage(ctx context.Context, ref transport.MessageRef) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.Messages[ref]
	return ok, nil
}

func (a *Adapter) FetchChannel(ctx context.Context, id int64) (*transport.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.LostChannels[id] {
		return nil, fmt.Errorf("fake: unknown channel %d", id)
	}
	return &transport.Channel{ID: id, Title: fmt.Sprintf("chat %d", id)}, nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string) error { return nil }

func (a *Adapter) CreateGroup(ctx context.Context, name string) (transport.Group, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextGrp++
	a.Groups[a.nextGrp] = &groupState{name: name, members: make(map[int64]bool)}
	return transport.Group{ID: a.nextGrp, Name: name}, nil
}

func (a *Adapter) FindGroup(ctx context.Context, name string) (transport.Group, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, g := range a.Groups {
		if g.name == name {
			return transport.Group{ID: id, Name: name}, true, nil
		}
	}
	return transport.Group{}, false, nil
}

func (a *Adapter) ListGroups(ctx context.Context) ([]transport.Group, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]transport.Group, 0, len(a.Groups))
	for id, g := range a.Groups {
		out = append(out, transport.Group{ID: id, Name: g.name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Adapter) RenameGroup(ctx context.Context, id int64, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.RenameCalls++
	g, ok := a.Groups[id]
	if !ok {
		return fmt.Errorf("fake: rename of unknown group %d", id)
	}
	g.name = name
	return nil
}

func (a *Adapter) DeleteGroup(ctx context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.Groups, id)
	return nil
}

func (a *Adapter) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.Groups[groupID]
	if !ok {
		return fmt.Errorf("fake: unknown group %d", groupID)
	}
	g.members[userID] = true
	return nil
}

func (a *Adapter) RemoveGroupMember(ctx context.Context, groupID, userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.Groups[groupID]
	if !ok {
		return fmt.Errorf("fake: unknown group %d", groupID)
	}
	delete(g.members, userID)
	return nil
}

func (a *Adapter) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.Groups[groupID]
	if !ok {
		return false, nil
	}
	return g.members[userID], nil
}

func (a *Adapter) GroupMention(ctx context.Context, groupID int64) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.Groups[groupID]
	if !ok {
		return "", fmt.Errorf("fake: unknown group %d", groupID)
	}
	ids := make([]int64, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("@%d", id)
	}
	return strings.Join(parts, " "), nil
}

// MessageCount reports how many messages are currently live.
func (a *Adapter) MessageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Messages)
}

// Text returns the current text of a live message, or "".
func (a *Adapter) Text(ref transport.MessageRef) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.Messages[ref]; ok {
		return m.Text
	}
	return ""
}

var _ transport.Adapter = (*Adapter)(nil)
