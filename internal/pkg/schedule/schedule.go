package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Interval is the billing cadence configured on a team.
type Interval string

const (
	IntervalWeek    Interval = "week"
	IntervalMonth   Interval = "month"
	IntervalQuarter Interval = "quarter"
)

var (
	// ErrMissingAnchorField is returned when the anchor lacks a field the interval needs.
	ErrMissingAnchorField = errors.New("missing anchor field")
	// ErrInvalidAnchor is returned when an anchor field is outside its valid domain.
	ErrInvalidAnchor = errors.New("invalid anchor")
)

// Anchor pins recurring due dates to a concrete calendar rule. Only the fields
// relevant to the interval are expected to be set.
type Anchor struct {
	Weekday        *int `json:"weekday,omitempty"`          // 0-6, Sunday=0
	DayOfMonth     *int `json:"day_of_month,omitempty"`     // 1-31
	MonthInQuarter *int `json:"month_in_quarter,omitempty"` // 1-3
}

// ParseInterval normalizes user and provider spellings of an interval.
func ParseInterval(raw string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "week", "weekly":
		return IntervalWeek, nil
	case "month", "monthly":
		return IntervalMonth, nil
	case "quarter", "quarterly":
		return IntervalQuarter, nil
	default:
		return "", fmt.Errorf("%w: unknown interval %q", ErrInvalidAnchor, raw)
	}
}

// Validate checks that the anchor carries every field required for the
// interval and that each present field is in range.
func (a Anchor) Validate(interval Interval) error {
	if a.Weekday != nil && (*a.Weekday < 0 || *a.Weekday > 6) {
		return fmt.Errorf("%w: weekday %d not in 0..6", ErrInvalidAnchor, *a.Weekday)
	}
	if a.DayOfMonth != nil && (*a.DayOfMonth < 1 || *a.DayOfMonth > 31) {
		return fmt.Errorf("%w: day_of_month %d not in 1..31", ErrInvalidAnchor, *a.DayOfMonth)
	}
	if a.MonthInQuarter != nil && (*a.MonthInQuarter < 1 || *a.MonthInQuarter > 3) {
		return fmt.Errorf("%w: month_in_quarter %d not in 1..3", ErrInvalidAnchor, *a.MonthInQuarter)
	}

	switch interval {
	case IntervalWeek:
		if a.Weekday == nil {
			return fmt.Errorf("%w: weekday is required for interval %s", ErrMissingAnchorField, interval)
		}
	case IntervalMonth:
		if a.DayOfMonth == nil {
			return fmt.Errorf("%w: day_of_month is required for interval %s", ErrMissingAnchorField, interval)
		}
	case IntervalQuarter:
		if a.DayOfMonth == nil {
			return fmt.Errorf("%w: day_of_month is required for interval %s", ErrMissingAnchorField, interval)
		}
		if a.MonthInQuarter == nil {
			return fmt.Errorf("%w: month_in_quarter is required for interval %s", ErrMissingAnchorField, interval)
		}
	default:
		return fmt.Errorf("%w: unknown interval %q", ErrInvalidAnchor, interval)
	}
	return nil
}

// Normalized returns a copy holding only the fields relevant to the interval.
func (a Anchor) Normalized(interval Interval) Anchor {
	switch interval {
	case IntervalWeek:
		return Anchor{Weekday: a.Weekday}
	case IntervalMonth:
		return Anchor{DayOfMonth: a.DayOfMonth}
	case IntervalQuarter:
		return Anchor{DayOfMonth: a.DayOfMonth, MonthInQuarter: a.MonthInQuarter}
	default:
		return Anchor{}
	}
}

// NextDueDate computes the next due instant strictly after now's calendar day,
// at 00:00 UTC. It reads no clock; the same inputs always give the same result.
func NextDueDate(now time.Time, interval Interval, anchor Anchor) (time.Time, error) {
	if err := anchor.Validate(interval); err != nil {
		return time.Time{}, err
	}

	today := StartOfDay(now)
	switch interval {
	case IntervalWeek:
		delta := (*anchor.Weekday - int(today.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return today.AddDate(0, 0, delta), nil

	case IntervalMonth:
		return clampedDate(today.Year(), today.Month()+1, *anchor.DayOfMonth), nil

	case IntervalQuarter:
		// 0-based month index; quarters start at 0, 3, 6, 9.
		m := int(today.Month()) - 1
		nextQuarterStart := (m/3)*3 + 3
		target := nextQuarterStart + (*anchor.MonthInQuarter - 1)
		return clampedDate(today.Year(), time.Month(target+1), *anchor.DayOfMonth), nil
	}

	return time.Time{}, fmt.Errorf("%w: unknown interval %q", ErrInvalidAnchor, interval)
}

// StartOfDay truncates t to midnight UTC of its UTC calendar day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysInMonth returns the number of days in the given month. Month values
// outside 1..12 are normalized with year rollover.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// clampedDate builds year/month/day at midnight UTC, normalizing month overflow
// first and then reducing day to the last valid day of that month.
func clampedDate(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := DaysInMonth(first.Year(), first.Month())
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}
