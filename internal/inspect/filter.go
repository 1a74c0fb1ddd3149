package inspect

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dyluth/copse/pkg/blackboard"
)

// Criteria narrows a list of entries. All set fields must match.
type Criteria struct {
	SinceMs  int64             // Record updated at or after, 0 = no bound
	UntilMs  int64             // Record updated at or before, 0 = no bound
	NameGlob string            // Glob on the coordinator name
	Kind     string            // Exact coordinator kind
	Status   blackboard.Status // Exact record status; waiting matches entries without a record
}

// Matches reports whether e passes every criterion.
func (c *Criteria) Matches(e Entry) bool {
	if c.NameGlob != "" {
		if ok, err := filepath.Match(c.NameGlob, e.Name); err != nil || !ok {
			return false
		}
	}
	if c.Kind != "" && e.Kind != c.Kind {
		return false
	}

	if c.Status != "" {
		if e.Record == nil {
			return c.Status == blackboard.StatusWaiting
		}
		if e.Record.Status != c.Status {
			return false
		}
	}

	if c.SinceMs > 0 || c.UntilMs > 0 {
		if e.Record == nil {
			return false
		}
		if c.SinceMs > 0 && e.Record.UpdatedAtMs < c.SinceMs {
			return false
		}
		if c.UntilMs > 0 && e.Record.UpdatedAtMs > c.UntilMs {
			return false
		}
	}
	return true
}

// Filter returns the entries that match c, in order.
func (c *Criteria) Filter(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if c.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// ParseTime turns a time specification into Unix milliseconds. It accepts an
// RFC3339 timestamp or a Go duration meaning that long before now.
func ParseTime(s string, now time.Time) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty time specification")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d).UnixMilli(), nil
	}
	return 0, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z')", s)
}

// ParseRange parses --since and --until. Empty flags leave that bound at 0.
func ParseRange(since, until string, now time.Time) (int64, int64, error) {
	var sinceMs, untilMs int64
	var err error

	if since != "" {
		if sinceMs, err = ParseTime(since, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}
	if until != "" {
		if untilMs, err = ParseTime(until, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if sinceMs > 0 && untilMs > 0 && sinceMs >= untilMs {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}
	return sinceMs, untilMs, nil
}
