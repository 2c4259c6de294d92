package access

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Anytime is the config sentinel for an unrestricted day or time field.
const Anytime = "anytime"

// DaySet is a set of weekdays stored as a bitmask.
type DaySet uint8

// EveryDay contains all seven weekdays.
const EveryDay DaySet = 1<<7 - 1

// Days builds a DaySet from weekdays.
func Days(ds ...time.Weekday) DaySet {
	var s DaySet
	for _, d := range ds {
		s |= 1 << uint(d)
	}
	return s
}

func (s DaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }

func (s DaySet) String() string {
	if s == EveryDay {
		return "any day"
	}
	var names []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			names = append(names, d.String())
		}
	}
	return "on " + strings.Join(names, ", ")
}

// HourRange is an inclusive range of local hours.
type HourRange struct {
	Start int
	End   int
}

// AllHours covers the whole day.
var AllHours = HourRange{Start: 0, End: 23}

func (r HourRange) Contains(hour int) bool { return hour >= r.Start && hour <= r.End }

func (r HourRange) String() string {
	if r == AllHours {
		return Anytime
	}
	return fmt.Sprintf("between %d and %d", r.Start, r.End)
}

// Schedule is the window during which a role may open the door. The zero
// value is never open; use Always for an unrestricted role.
//
// Weekday and hour are read from the time value as given: callers pass a
// time already in the door's configured location. There is no further
// timezone handling.
type Schedule struct {
	Days  DaySet
	Hours HourRange
}

// Always is open every day at every hour.
var Always = Schedule{Days: EveryDay, Hours: AllHours}

// IsOpen reports whether the schedule admits t. Both the day and the hour
// check must pass; hour bounds are inclusive.
func (s Schedule) IsOpen(t time.Time) bool {
	return s.Days.Has(t.Weekday()) && s.Hours.Contains(t.Hour())
}

func (s Schedule) String() string {
	if s == Always {
		return Anytime
	}
	return s.Days.String() + " " + s.Hours.String()
}

var errEmptyDays = errors.New("days of week: empty list")

// ParseDays decodes the configured days: nil or the single entry "anytime"
// means every day, otherwise each entry must be an English weekday name.
func ParseDays(days []string) (DaySet, error) {
	if days == nil || (len(days) == 1 && strings.EqualFold(strings.TrimSpace(days[0]), Anytime)) {
		return EveryDay, nil
	}
	if len(days) == 0 {
		return 0, errEmptyDays
	}
	var s DaySet
	for _, name := range days {
		d, ok := parseWeekday(name)
		if !ok {
			return 0, fmt.Errorf("days of week: unknown day %q", name)
		}
		s |= Days(d)
	}
	return s, nil
}

func parseWeekday(name string) (time.Weekday, bool) {
	name = strings.TrimSpace(name)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, true
		}
	}
	return 0, false
}

// ParseHours decodes "anytime" or "start-end" with 0 <= start <= end <= 23.
func ParseHours(timeRange string) (HourRange, error) {
	timeRange = strings.TrimSpace(timeRange)
	if timeRange == "" || strings.EqualFold(timeRange, Anytime) {
		return AllHours, nil
	}
	lo, hi, ok := strings.Cut(timeRange, "-")
	if !ok {
		return HourRange{}, fmt.Errorf("time range %q: want start-end", timeRange)
	}
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return HourRange{}, fmt.Errorf("time range %q: start: %w", timeRange, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return HourRange{}, fmt.Errorf("time range %q: end: %w", timeRange, err)
	}
	if start < 0 || end > 23 || start > end {
		return HourRange{}, fmt.Errorf("time range %q: hours must satisfy 0 <= start <= end <= 23", timeRange)
	}
	return HourRange{Start: start, End: end}, nil
}

// ParseSchedule decodes the two configured fields of a role.
func ParseSchedule(days []string, timeRange string) (Schedule, error) {
	ds, err := ParseDays(days)
	if err != nil {
		return Schedule{}, err
	}
	hr, err := ParseHours(timeRange)
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{Days: ds, Hours: hr}, nil
}
