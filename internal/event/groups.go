package event

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"eventbot/internal/transport"
)

// groupSuffix matches the uuid tail appended to notification group names.
var groupSuffix = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsEventGroupName reports whether a group name carries an event uuid suffix,
// which marks it as owned by the scheduler.
func IsEventGroupName(name string) bool {
	return groupSuffix.MatchString(name)
}

// EnsureGroup creates the event's notification group and looks it up again
// until it is visible, retrying a bounded number of times. Group creation is
// not read-your-writes on every platform, so the lookup may lag the create.
func EnsureGroup(ctx context.Context, adapter transport.Adapter, e *ScheduledEvent, retries int, delay time.Duration) (transport.Group, error) {
	name := e.GroupName()
	if _, err := adapter.CreateGroup(ctx, name); err != nil {
		return transport.Group{}, fmt.Errorf("create group %q: %w", name, err)
	}
	// Re-resolve by name rather than trusting the create result; some
	// platforms are not read-your-writes here.
	return LookupGroup(ctx, adapter, name, retries, delay)
}

// LookupGroup finds a group by name with bounded retries.
func LookupGroup(ctx context.Context, adapter transport.Adapter, name string, retries int, delay time.Duration) (transport.Group, error) {
	if retries < 1 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		g, ok, err := adapter.FindGroup(ctx, name)
		if err != nil {
			return transport.Group{}, err
		}
		if ok {
			return g, nil
		}
		select {
		case <-ctx.Done():
			return transport.Group{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return transport.Group{}, fmt.Errorf("group %q not visible after %d lookups", name, retries)
}
