package reminder

import (
	"sort"
	"time"
)

// Weekly fires at UTCHour:UTCMinute UTC on each selected weekday
// (1 = Sunday ... 7 = Saturday).
type Weekly struct {
	UTCHour   int
	UTCMinute int
	Weekdays  []int
	Skip      SkipState
}

// NewWeekly normalizes weekdays (sorted, deduplicated) and validates the rule.
func NewWeekly(utcHour, utcMinute int, weekdays ...int) (*Weekly, error) {
	w := &Weekly{UTCHour: utcHour, UTCMinute: utcMinute, Weekdays: normalizeWeekdays(weekdays)}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Weekly) Kind() Kind { return KindWeekly }

func (w *Weekly) Validate() error {
	if err := validateClock(w.UTCHour, w.UTCMinute); err != nil {
		return err
	}
	if len(w.Weekdays) == 0 {
		return configErr("weekdays", "at least one weekday is required")
	}
	for _, wd := range w.Weekdays {
		if wd < 1 || wd > 7 {
			return configErr("weekdays", "weekday %d outside 1..7", wd)
		}
	}
	return nil
}

// Candidates returns one instant per selected weekday, each strictly after
// basis and within the following seven days. A single selected weekday also
// yields the occurrence one week later so there is always a lookahead.
func (w *Weekly) Candidates(basis time.Time) []time.Time {
	days := normalizeWeekdays(w.Weekdays)
	out := make([]time.Time, 0, len(days)+1)
	for _, wd := range days {
		out = append(out, w.nextOn(basis, wd))
	}
	if len(out) == 1 {
		out = append(out, out[0].AddDate(0, 0, 7))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// previous is the latest occurrence at or before basis: each weekday's next
// occurrence minus one week, the closest of those to basis.
func (w *Weekly) previous(basis, _ time.Time) time.Time {
	var best time.Time
	for _, wd := range normalizeWeekdays(w.Weekdays) {
		c := w.nextOn(basis, wd).AddDate(0, 0, -7)
		if c.After(basis) {
			continue
		}
		if best.IsZero() || c.After(best) {
			best = c
		}
	}
	return best
}

func (w *Weekly) nextOn(basis time.Time, weekday int) time.Time {
	b := basis.UTC()
	delta := (weekday - 1 - int(b.Weekday()) + 7) % 7
	c := time.Date(b.Year(), b.Month(), b.Day()+delta, w.UTCHour, w.UTCMinute, 0, 0, time.UTC)
	if !c.After(basis) {
		c = c.AddDate(0, 0, 7)
	}
	return c
}

func (w *Weekly) skipState() *SkipState { return &w.Skip }

func (w *Weekly) clone() Mode {
	cp := *w
	cp.Weekdays = append([]int(nil), w.Weekdays...)
	return &cp
}

func normalizeWeekdays(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, wd := range in {
		if seen[wd] {
			continue
		}
		seen[wd] = true
		out = append(out, wd)
	}
	sort.Ints(out)
	return out
}

func validateClock(hour, minute int) error {
	if hour < 0 || hour > 23 {
		return configErr("utc_hour", "%d outside 0..23", hour)
	}
	if minute < 0 || minute > 59 {
		return configErr("utc_minute", "%d outside 0..59", minute)
	}
	return nil
}
