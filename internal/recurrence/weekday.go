package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// WeekdaySet is a set of weekdays encoded as a bitmask, bit 0 = Sunday.
type WeekdaySet uint8

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

var shortNames = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// NewWeekdaySet builds a set from the given weekdays. Duplicates collapse.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

// ParseWeekdaySet parses a comma-separated list of weekday names, e.g.
// "mon,wed,fri". Full names are accepted too. Parsing is case-insensitive.
func ParseWeekdaySet(raw string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		d, ok := weekdayNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", part)
		}
		s = s.With(d)
	}
	return s, nil
}

// With returns a copy of the set with d added.
func (s WeekdaySet) With(d time.Weekday) WeekdaySet {
	return s | 1<<uint(d)
}

// Contains reports whether d is in the set.
func (s WeekdaySet) Contains(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// IsEmpty reports whether no weekday is selected.
func (s WeekdaySet) IsEmpty() bool {
	return s == 0
}

// Weekdays returns the selected weekdays in Sunday-to-Saturday order.
func (s WeekdaySet) Weekdays() []time.Weekday {
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Contains(d) {
			days = append(days, d)
		}
	}
	return days
}

// String renders the set as comma-separated short names, e.g. "mon,wed,fri".
// This is the storage and config representation.
func (s WeekdaySet) String() string {
	var names []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Contains(d) {
			names = append(names, shortNames[d])
		}
	}
	return strings.Join(names, ",")
}
