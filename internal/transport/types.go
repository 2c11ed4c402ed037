package transport

import (
	"context"
	"errors"
)

// ErrNotModified is returned by EditText when the new content equals the old;
// callers may treat it as success.
var ErrNotModified = errors.New("transport: message not modified")

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

type Channel struct {
	ID    int64
	Title string
}

// Group is an opt-in mention target. One group exists per scheduled event and
// carries the event uuid in its name so it can be found again after a restart.
type Group struct {
	ID   int64
	Name string
}

// Button is one inline keyboard button. Data is routed back verbatim as a
// callback when tapped.
type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	ParseMode      string // "HTML" or empty for plain text
	DisablePreview bool
	Buttons        [][]Button
}

// Adapter is the chat-platform capability set consumed by the bot.
//
// Sends and edits block only the calling goroutine; no latency bound is
// assumed and no ordering is guaranteed between unrelated calls.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	// FetchMessage reports whether the referenced message still exists.
	FetchMessage(ctx context.Context, ref MessageRef) (bool, error)
	FetchChannel(ctx context.Context, id int64) (*Channel, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	CreateGroup(ctx context.Context, name string) (Group, error)
	// FindGroup looks a group up by exact name; ok=false when absent.
	FindGroup(ctx context.Context, name string) (Group, bool, error)
	ListGroups(ctx context.Context) ([]Group, error)
	RenameGroup(ctx context.Context, id int64, name string) error
	DeleteGroup(ctx context.Context, id int64) error
	AddGroupMember(ctx context.Context, groupID, userID int64) error
	RemoveGroupMember(ctx context.Context, groupID, userID int64) error
	IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error)
	// GroupMention renders a string that notifies every group member when sent.
	GroupMention(ctx context.Context, groupID int64) (string, error)
}
