// Package timegate decides whether time-gated content is visible.
//
// All comparisons happen on UTC instants. Values that carry no zone of their
// own (datetime-local form input, DATE columns) are read as UTC wall clock.
package timegate

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// zoneless layouts accepted by ParseThreshold, most specific first.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// IsVisible reports whether now has reached threshold.
func IsVisible(now, threshold time.Time) bool {
	return !now.UTC().Before(threshold.UTC())
}

// AssumeUTC keeps t's wall clock and replaces its zone with UTC. Use it for
// values whose zone is meaningless.
func AssumeUTC(t time.Time) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
}

// ParseThreshold parses an RFC 3339 timestamp, or a zoneless one which is
// then taken as UTC. The result is always in UTC.
func ParseThreshold(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return AssumeUTC(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q; expected RFC3339 or YYYY-MM-DDTHH:MM", s)
}

// Day truncates t to midnight of its own calendar date, in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is the UTC calendar date of now.
func Today(now time.Time) time.Time {
	return Day(now.UTC())
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", s)
	}
	return t, nil
}

// DateVisible reports whether a date-gated item unlocking on unlock is
// visible at now. The time of day of now does not matter, only its UTC date.
func DateVisible(now, unlock time.Time) bool {
	return !Today(now).Before(Day(unlock))
}
