package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidOverride is returned for a manager-supplied due date that is
// malformed, not a real calendar date, or not in the future.
var ErrInvalidOverride = errors.New("invalid due date override")

const overrideDateLayout = "2006-01-02"

// ParseDueOverride parses a manager-supplied due date (YYYY-MM-DD or RFC3339)
// and returns it at day granularity. The date must lie strictly after now.
func ParseDueOverride(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidOverride)
	}

	var parsed time.Time
	var err error
	if len(s) == len(overrideDateLayout) {
		parsed, err = time.ParseInLocation(overrideDateLayout, s, time.UTC)
	} else {
		parsed, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a valid date", ErrInvalidOverride, s)
	}

	return ValidateDueOverride(parsed, now)
}

// ValidateDueOverride normalizes an already parsed override to the start of its
// UTC day and rejects it unless it is strictly after now.
func ValidateDueOverride(due, now time.Time) (time.Time, error) {
	if due.IsZero() {
		return time.Time{}, fmt.Errorf("%w: zero date", ErrInvalidOverride)
	}
	day := StartOfDay(due)
	if !day.After(now) {
		return time.Time{}, fmt.Errorf("%w: %s is not in the future", ErrInvalidOverride, day.Format(overrideDateLayout))
	}
	return day, nil
}
