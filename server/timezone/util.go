// Package timezone provides timezone utilities for policy-limit windows and
// send-window evaluation. All engine limits are evaluated in the timezone the
// agent config names, never the server's local zone.
package timezone

import (
	"fmt"
	"time"
)

// UTC is the coordinated universal time timezone.
var UTC = time.UTC

// ParseTimezone parses an IANA timezone identifier (e.g., "America/New_York").
// If the timezone is invalid, returns UTC and an error.
func ParseTimezone(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return UTC, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	return loc, nil
}

// IsValidTimezone checks if a timezone identifier is valid.
func IsValidTimezone(tz string) bool {
	if tz == "" || tz == "UTC" {
		return true
	}

	_, err := time.LoadLocation(tz)
	return err == nil
}

// StartOfDay returns the start of the day (00:00:00) in the given timezone.
func StartOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	local := t.In(tz)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
}

// StartOfWeek returns the start of the ISO week (Monday 00:00:00) in the
// given timezone.
func StartOfWeek(t time.Time, tz *time.Location) time.Time {
	day := StartOfDay(t, tz)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// StartOfYear returns January 1st 00:00:00 of t's year in the given timezone.
func StartOfYear(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	local := t.In(tz)
	return time.Date(local.Year(), 1, 1, 0, 0, 0, 0, tz)
}

// InSendWindow reports whether t falls inside the [startHour, endHour) send
// window in the given timezone, optionally excluding weekends. startHour is
// inclusive, endHour exclusive.
func InSendWindow(t time.Time, tz *time.Location, startHour, endHour int, excludeWeekends bool) bool {
	if tz == nil {
		tz = UTC
	}
	local := t.In(tz)

	if excludeWeekends {
		switch local.Weekday() {
		case time.Saturday, time.Sunday:
			return false
		}
	}

	hour := local.Hour()
	return hour >= startHour && hour < endHour
}

// NowInTimezone returns the current time in the given timezone.
func NowInTimezone(tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	return time.Now().In(tz)
}
