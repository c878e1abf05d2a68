// Package timeutil provides day-granularity time utilities for streak
// accounting. Streak continuity is measured in whole elapsed 24h periods,
// so a learner anywhere in the world gets the same result regardless of
// the server's local timezone. Calendar helpers (StartOfDay, SameDay,
// NextMidnight) operate on UTC calendar days.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of the UTC day containing t.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Nanosecond)
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return StartOfDay(a).Equal(StartOfDay(b))
}

// DaysBetween returns floor((b - a) / 24h): the number of whole 24-hour
// periods elapsed from a to b. Less than 24h apart is 0 days, 26h apart
// is 1 day, 50h apart is 2 days. The result is negative when b is
// before a.
func DaysBetween(a, b time.Time) int {
	d := b.Sub(a)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// DaysSince returns the number of whole 24-hour periods elapsed from t
// to now.
func DaysSince(t time.Time, now time.Time) int {
	return DaysBetween(t, now)
}

// IsYesterday reports whether t is between 24h and 48h before now.
func IsYesterday(t time.Time, now time.Time) bool {
	return DaysBetween(t, now) == 1
}

// NextMidnight returns the first instant of the UTC day after t.
// Useful for scheduling "streak at risk" reminders.
func NextMidnight(t time.Time) time.Time {
	return StartOfDay(t).Add(24 * time.Hour)
}

// StartOfWeek returns Monday 00:00:00 UTC of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return day.AddDate(0, 0, -(weekday - 1))
}
