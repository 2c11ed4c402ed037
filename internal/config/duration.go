package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationOrDefault reads a Go duration string from a config field,
// falling back to def when the field is empty or zero. Negative values are
// rejected; path names the offending field in the error.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
