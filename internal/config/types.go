package config

type Config struct {
	Platform  PlatformConfig  `json:"platform"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type PlatformConfig struct {
	Token string `json:"token"`
	// CommandPrefix marks the first token of a message as a command.
	CommandPrefix string  `json:"command_prefix,omitempty"`
	OwnerUserIDs  []int64 `json:"owner_user_ids"`
	// LogChatID receives mirrored warnings/errors when logging.chat is enabled.
	LogChatID int64 `json:"log_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the sqlite persistence layer. Every scheduled event
// is mirrored into one durable row, which is the sole source of truth across
// restarts.
type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the event firing loop.
//
// All durations are Go duration strings. Defaults (when fields are omitted):
//   - poll_interval: "30s"
//   - group_lookup_retries: 10
//   - group_lookup_delay: "100ms"
//   - card_refresh_spec: "*/15 * * * *"
//   - near_refresh_spec: "@every 1m"
type SchedulerConfig struct {
	PollInterval string `json:"poll_interval,omitempty"`

	// Bounded retry budget for resolving a notification group right after
	// creating it (platform-side creation is eventually consistent).
	GroupLookupRetries int    `json:"group_lookup_retries,omitempty"`
	GroupLookupDelay   string `json:"group_lookup_delay,omitempty"`

	// Cron specs for the periodic message-card refresh: all cards on the
	// coarse spec, cards inside the final 15 minutes on the near spec.
	CardRefreshSpec string `json:"card_refresh_spec,omitempty"`
	NearRefreshSpec string `json:"near_refresh_spec,omitempty"`
}
