package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string; "" means 0. path names the
// field in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// TimeoutDuration returns the per-run timeout, 0 when unset. Validate has
// already rejected malformed values.
func (p PlanConfig) TimeoutDuration() time.Duration {
	d, _ := ParseDurationField("timeout", p.Timeout)
	return d
}

func (s StorageConfig) BusyTimeoutDuration() time.Duration {
	d, _ := ParseDurationField("busy_timeout", s.BusyTimeout)
	return d
}
