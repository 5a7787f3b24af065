package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var timeRe = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// IsValidTime reports whether s is a 24h "HH:MM" clock time. A single
// leading hour digit is accepted ("7:05").
func IsValidTime(s string) bool {
	return timeRe.MatchString(s)
}

// FormatTime renders the time-of-day of t as zero-padded "HH:MM".
func FormatTime(t time.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// ParseTime splits a valid "HH:MM" string into hour and minute.
func ParseTime(s string) (hour, minute int, err error) {
	if !IsValidTime(s) {
		return 0, 0, fmt.Errorf("invalid time %q", s)
	}
	parts := strings.SplitN(s, ":", 2)
	hour, _ = strconv.Atoi(parts[0])
	minute, _ = strconv.Atoi(parts[1])
	return hour, minute, nil
}

// Normalize re-renders a valid clock time as zero-padded "HH:MM", so
// "7:05" and "07:05" store and compare identically. Invalid input is
// returned unchanged.
func Normalize(s string) string {
	hour, minute, err := ParseTime(s)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// NextOccurrence returns now's date with timeOfDay substituted. If that
// moment is at or before now, the same time on the following calendar day
// is returned instead. This is the only day-rollover rule: alarms never
// store a date.
func NextOccurrence(timeOfDay string, now time.Time) (time.Time, error) {
	hour, minute, err := ParseTime(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// HasTimePassed reports whether timeOfDay is at or before now's time of day.
func HasTimePassed(timeOfDay string, now time.Time) bool {
	hour, minute, err := ParseTime(timeOfDay)
	if err != nil {
		return false
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	return !at.After(now)
}

// TimeUntil returns the duration from now until the next occurrence of
// timeOfDay.
func TimeUntil(timeOfDay string, now time.Time) (time.Duration, error) {
	at, err := NextOccurrence(timeOfDay, now)
	if err != nil {
		return 0, err
	}
	return at.Sub(now), nil
}

// FormatDuration renders d as "Xh Ymin", or "Ymin" under one hour.
func FormatDuration(d time.Duration) string {
	total := int(d.Minutes())
	hours := total / 60
	minutes := total % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dmin", hours, minutes)
	}
	return fmt.Sprintf("%dmin", minutes)
}

// Compare orders two "HH:MM" strings. Lexical comparison is total because
// stored times are zero-padded.
func Compare(a, b string) int {
	return strings.Compare(a, b)
}
