package reminder

import (
	"sort"
	"time"
)

const (
	minutesPerDay = 24 * 60
	week          = 7 * 24 * time.Hour
)

// Fields are the UTC calendar components of an instant. Weekday uses the
// reminder numbering: 1 = Sunday ... 7 = Saturday.
type Fields struct {
	Hour    int
	Minute  int
	Day     int
	Weekday int
}

// UTCFromInstant extracts the UTC calendar fields of t.
func UTCFromInstant(t time.Time) Fields {
	u := t.UTC()
	return Fields{
		Hour:    u.Hour(),
		Minute:  u.Minute(),
		Day:     u.Day(),
		Weekday: int(u.Weekday()) + 1,
	}
}

// OffsetSeconds is loc's UTC offset in effect at the given instant.
func OffsetSeconds(loc *time.Location, at time.Time) int {
	if loc == nil {
		loc = time.Local
	}
	_, off := at.In(loc).Zone()
	return off
}

// LocalHourMinute converts a UTC wall time to the zone with the given
// offset. Offsets may carry 30/45-minute components and be negative; the
// result always wraps into 0..23 / 0..59.
func LocalHourMinute(utcHour, utcMinute, offsetSeconds int) (hour, minute int) {
	h, m, _ := shiftMinutes(utcHour, utcMinute, offsetSeconds/60)
	return h, m
}

// UTCHourMinute is the inverse of LocalHourMinute.
func UTCHourMinute(localHour, localMinute, offsetSeconds int) (hour, minute int) {
	h, m, _ := shiftMinutes(localHour, localMinute, -offsetSeconds/60)
	return h, m
}

// shiftMinutes moves hour:minute by delta minutes and reports how many days
// the result crossed (-1, 0 or +1 for offsets within ±24h).
func shiftMinutes(hour, minute, delta int) (h, m, dayShift int) {
	total := hour*60 + minute + delta
	dayShift = floorDiv(total, minutesPerDay)
	total -= dayShift * minutesPerDay
	return total / 60, total % 60, dayShift
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ShiftWeekdays converts a weekday selection made in local time at
// localHour:localMinute into the UTC weekdays and UTC wall time a Weekly
// rule stores. When the conversion crosses midnight every weekday moves
// with it (Monday 01:00 at UTC+3 is Sunday 22:00 UTC).
func ShiftWeekdays(weekdays []int, localHour, localMinute, offsetSeconds int) (utcWeekdays []int, utcHour, utcMinute int) {
	utcHour, utcMinute, dayShift := shiftMinutes(localHour, localMinute, -offsetSeconds/60)
	seen := make(map[int]bool, len(weekdays))
	for _, wd := range weekdays {
		shifted := ((wd-1+dayShift)%7+7)%7 + 1
		if !seen[shifted] {
			seen[shifted] = true
			utcWeekdays = append(utcWeekdays, shifted)
		}
	}
	sort.Ints(utcWeekdays)
	return utcWeekdays, utcHour, utcMinute
}

// UTCDayFromLocal converts a local day-of-month at localHour:localMinute to
// the UTC day-of-month a Monthly rule stores. Days wrap within 1..31; the
// per-month clamp happens when candidates are computed.
func UTCDayFromLocal(day, localHour, localMinute, offsetSeconds int) (utcDay, utcHour, utcMinute int) {
	utcHour, utcMinute, dayShift := shiftMinutes(localHour, localMinute, -offsetSeconds/60)
	utcDay = ((day-1+dayShift)%31+31)%31 + 1
	return utcDay, utcHour, utcMinute
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// atUTC builds year/month/day hour:minute:00 UTC, clamping day to the
// month's last day. UTC has no DST transitions, so every wall time exists
// exactly once and the first match is the only match.
func atUTC(year int, month time.Month, day, hour, minute int) time.Time {
	// Normalize month overflow (e.g. month 13) before clamping the day.
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, minute, 0, 0, time.UTC)
}
