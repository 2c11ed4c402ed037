package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// EventRecord is the durable mirror of one scheduled event. It is written in
// full on every mutating operation and deleted when the event ends for good.
type EventRecord struct {
	UUID       string
	Start      time.Time
	Duration   time.Duration
	Recurrence string
	Title      string
	Details    string
	ChannelID  int64
	MessageID  int
	// PingMessageID is 0 while no start notification is live for the current
	// occurrence (stored as NULL).
	PingMessageID int
}

// ChatSettings holds per-chat configuration consumed by command handlers.
type ChatSettings struct {
	ChatID int64
	// AdminIDs may manage events in this chat (the bot owners always can).
	AdminIDs []int64
	// EventChannelID is the designated channel for event cards and pings.
	EventChannelID int64
}

// GroupRow is a notification-group registry entry.
type GroupRow struct {
	ID   int64
	Name string
}

// EventStore persists durable event records.
type EventStore interface {
	PutEvent(ctx context.Context, r EventRecord) error
	GetEvent(ctx context.Context, uuid string) (EventRecord, bool, error)
	DeleteEvent(ctx context.Context, uuid string) error
	ListEvents(ctx context.Context) ([]EventRecord, error)
}

// SettingsStore persists per-chat settings.
type SettingsStore interface {
	ChatSettings(ctx context.Context, chatID int64) (ChatSettings, bool, error)
	PutChatSettings(ctx context.Context, s ChatSettings) error
}

// GroupStore backs the adapter's notification-group registry.
type GroupStore interface {
	CreateGroup(ctx context.Context, name string) (int64, error)
	GroupByName(ctx context.Context, name string) (GroupRow, bool, error)
	ListGroups(ctx context.Context) ([]GroupRow, error)
	RenameGroup(ctx context.Context, id int64, name string) error
	DeleteGroup(ctx context.Context, id int64) error
	AddGroupMember(ctx context.Context, groupID, userID int64) error
	RemoveGroupMember(ctx context.Context, groupID, userID int64) error
	IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error)
	GroupMembers(ctx context.Context, groupID int64) ([]int64, error)
}

// Store is the full persistence API.
type Store interface {
	EventStore
	SettingsStore
	GroupStore
	Close() error
}
