// Package timeutil provides calendar helpers for trajectory snapshots.
// Scores are bucketed by UTC calendar day so that one student has at most
// one trajectory point per day regardless of the caller's timezone.
package timeutil

import (
	"time"
)

// Date layouts used across the engine.
const (
	FormatDate     = "2006-01-02"
	FormatDateTime = "2006-01-02 15:04:05"
)

// Day is one calendar day.
const Day = 24 * time.Hour

// StartOfDay returns 00:00:00 UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of the UTC day containing t.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(Day - time.Nanosecond)
}

// IsSameDay reports whether both times fall on the same UTC day.
func IsSameDay(t1, t2 time.Time) bool {
	return StartOfDay(t1).Equal(StartOfDay(t2))
}

// DaysBetween returns the absolute number of whole calendar days between t1 and t2.
func DaysBetween(t1, t2 time.Time) int {
	days := int(StartOfDay(t2).Sub(StartOfDay(t1)) / Day)
	if days < 0 {
		days = -days
	}
	return days
}

// Days converts a fractional day count to a duration.
func Days(n float64) time.Duration {
	return time.Duration(n * float64(Day))
}

// RetentionCutoff returns the start of the oldest day that is still retained.
func RetentionCutoff(now time.Time, retention time.Duration) time.Time {
	return StartOfDay(now.Add(-retention))
}

// FormatDateStr formats t as a UTC date.
func FormatDateStr(t time.Time) string {
	return t.UTC().Format(FormatDate)
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, time.UTC)
}
