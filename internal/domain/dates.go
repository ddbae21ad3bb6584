package domain

import (
	"strings"
	"time"
)

var isoLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	time.RFC3339Nano,
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
}

var monthFirstLayouts = []string{
	"1/2/2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1-2-2006",
	"1-2-2006 15:04:05",
	"1-2-2006 15:04",
}

var dayFirstLayouts = []string{
	"2/1/2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2-1-2006",
	"2-1-2006 15:04:05",
	"2-1-2006 15:04",
}

// ParseTimestamp parses a source date or datetime. Unambiguous year-first
// forms are tried first; NN/NN/YYYY is read month-first unless dayFirst is
// set, falling back to the other order when the first reading is invalid
// (e.g. "25/12/2024" month-first). The result carries the source wall clock
// in UTC. ok is false for empty or unparseable input.
func ParseTimestamp(raw string, dayFirst bool) (t time.Time, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	first, second := monthFirstLayouts, dayFirstLayouts
	if dayFirst {
		first, second = dayFirstLayouts, monthFirstLayouts
	}

	for _, group := range [][]string{isoLayouts, first, second} {
		for _, layout := range group {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return wallClockUTC(parsed), true
			}
		}
	}
	return time.Time{}, false
}

// ParseDate parses raw and truncates it to a calendar date.
func ParseDate(raw string, dayFirst bool) (time.Time, bool) {
	t, ok := ParseTimestamp(raw, dayFirst)
	if !ok {
		return time.Time{}, false
	}
	return TruncateToDate(t), true
}

// TruncateToDate drops the time-of-day component.
func TruncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// HasTimeOfDay reports whether t carries a non-midnight time component.
func HasTimeOfDay(t time.Time) bool {
	return t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0
}

func wallClockUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
