// Package storage is the sqlite persistence layer: one durable row per
// scheduled event (the restart authority), per-chat settings, and the
// notification-group registry used by the platform adapter.
package storage
