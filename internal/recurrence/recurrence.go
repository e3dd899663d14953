// Package recurrence computes the next firing instant for weekly
// publishing rules: a set of weekdays plus a wall-clock time in an IANA
// timezone. All returned instants are UTC.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when a rule carries malformed or empty fields. Rule
// creation is expected to reject such input; these keep the engine moving
// if a bad row slips through.
const (
	DefaultHour    = 9
	DefaultMinute  = 0
	DefaultWeekday = time.Monday
)

// ParseTimeOfDay parses a 24-hour "HH:MM" string.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// Next returns the earliest instant strictly after from at which a rule
// firing on days at timeOfDay in tz occurs.
//
// Candidate days are scanned from from's civil date in tz through a full
// week ahead, so a rule whose only selected day is "today" lands exactly
// seven days out once today's time has passed. The UTC offset is resolved
// per candidate date, not taken from from, which keeps the local
// wall-clock time stable across DST transitions.
//
// Next is pure: no I/O, no clock reads, deterministic for fixed inputs.
func Next(days WeekdaySet, timeOfDay, tz string, from time.Time) time.Time {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	hour, minute, perr := ParseTimeOfDay(timeOfDay)
	if perr != nil {
		hour, minute = DefaultHour, DefaultMinute
	}

	if days.IsEmpty() {
		days = NewWeekdaySet(DefaultWeekday)
	}

	local := from.In(loc)
	for i := 0; i <= 7; i++ {
		day := local.AddDate(0, 0, i)
		if !days.Contains(day.Weekday()) {
			continue
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
		if candidate.After(from) {
			return candidate.UTC()
		}
	}

	// Unreachable with a non-empty set and a valid time, kept as a floor so
	// a rule can never be parked in the past.
	day := local.AddDate(0, 0, 1)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc).UTC()
}
