package profile

import (
	"fmt"
	"time"
)

// WindowPolicy selects how profiles are bounded in time.
type WindowPolicy string

const (
	// WindowSession resets once per UTC day.
	WindowSession WindowPolicy = "session"
	// WindowRolling rotates on a fixed duration.
	WindowRolling WindowPolicy = "rolling"
)

// WindowConfig is the windowing policy plus its rolling duration.
type WindowConfig struct {
	Policy   WindowPolicy
	Duration time.Duration // used by WindowRolling only
}

// ParseWindowPolicy validates a policy string from configuration.
func ParseWindowPolicy(s string) (WindowPolicy, error) {
	switch WindowPolicy(s) {
	case WindowSession:
		return WindowSession, nil
	case WindowRolling:
		return WindowRolling, nil
	}
	return "", fmt.Errorf("invalid window policy: %q", s)
}

// WindowFor returns the [start, end) bounds of the window containing ts.
// Consecutive windows chain exactly: the end of one is the start of the
// next, so rotation at a boundary opens the adjacent window unless the feed
// skipped past it entirely.
func (c WindowConfig) WindowFor(ts time.Time) (start, end time.Time) {
	switch c.Policy {
	case WindowSession:
		start = ts.UTC().Truncate(24 * time.Hour)
		return start, start.Add(24 * time.Hour)
	default:
		start = ts.UTC().Truncate(c.Duration)
		return start, start.Add(c.Duration)
	}
}
