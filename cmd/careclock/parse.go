package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"careclock/internal/reminder"
)

// parseClock reads "HH:MM" in 24h form.
func parseClock(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("time %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time %q: hour must be 0-23", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 || len(m) != 2 {
		return 0, 0, fmt.Errorf("time %q: minute must be 00-59", s)
	}
	return hour, minute, nil
}

var weekdayNames = map[string]int{
	"sun": 1, "sunday": 1,
	"mon": 2, "monday": 2,
	"tue": 3, "tues": 3, "tuesday": 3,
	"wed": 4, "wednesday": 4,
	"thu": 5, "thur": 5, "thurs": 5, "thursday": 5,
	"fri": 6, "friday": 6,
	"sat": 7, "saturday": 7,
}

// parseWeekdays reads a comma list of names or numbers (1 = Sunday).
// "daily" and "weekdays" expand to their usual sets.
func parseWeekdays(s string) ([]int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "everyday":
		return []int{1, 2, 3, 4, 5, 6, 7}, nil
	case "weekdays":
		return []int{2, 3, 4, 5, 6}, nil
	case "weekends":
		return []int{1, 7}, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		p := strings.ToLower(strings.TrimSpace(part))
		if p == "" {
			continue
		}
		if n, err := strconv.Atoi(p); err == nil {
			if n < 1 || n > 7 {
				return nil, fmt.Errorf("weekday %d out of range 1-7 (1 = Sunday)", n)
			}
			out = append(out, n)
			continue
		}
		n, ok := weekdayNames[p]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one weekday required")
	}
	return out, nil
}

var dateLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.RFC3339,
}

// parseLocalDateTime reads a wall-clock date and time in loc. RFC 3339
// input keeps its own offset.
func parseLocalDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD HH:MM", s)
}

// weeklyAt converts a local weekly rule to its UTC form using the zone
// offset in effect at now.
func weeklyAt(localHour, localMinute int, localDays []int, loc *time.Location, now time.Time) (*reminder.Weekly, error) {
	off := reminder.OffsetSeconds(loc, now)
	days, h, m := reminder.ShiftWeekdays(localDays, localHour, localMinute, off)
	return reminder.NewWeekly(h, m, days...)
}

// monthlyAt converts a local monthly rule to its UTC form.
func monthlyAt(localHour, localMinute, localDay int, loc *time.Location, now time.Time) (*reminder.Monthly, error) {
	if localDay < 1 || localDay > 31 {
		return nil, fmt.Errorf("day %d out of range 1-31", localDay)
	}
	off := reminder.OffsetSeconds(loc, now)
	day, h, m := reminder.UTCDayFromLocal(localDay, localHour, localMinute, off)
	return reminder.NewMonthly(h, m, day)
}
