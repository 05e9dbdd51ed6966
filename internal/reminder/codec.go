package reminder

import (
	"fmt"
	"time"
)

// Record is the flat persistence shape of a Reminder.
type Record struct {
	ID                  string    `json:"id"`
	Action              string    `json:"action,omitempty"`
	CustomLabel         string    `json:"custom_label,omitempty"`
	Kind                string    `json:"kind"`
	ExecutionBasis      time.Time `json:"execution_basis"`
	Enabled             bool      `json:"enabled"`
	PresentationHandled bool      `json:"presentation_handled,omitempty"`

	Interval time.Duration `json:"interval,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`

	UTCHour   int   `json:"utc_hour,omitempty"`
	UTCMinute int   `json:"utc_minute,omitempty"`
	Weekdays  []int `json:"weekdays,omitempty"`
	UTCDay    int   `json:"utc_day,omitempty"`

	Date *time.Time `json:"date,omitempty"`

	Skipping  bool       `json:"skipping,omitempty"`
	SkippedAt *time.Time `json:"skipped_at,omitempty"`

	SnoozeEnabled  bool          `json:"snooze_enabled,omitempty"`
	SnoozeInterval time.Duration `json:"snooze_interval,omitempty"`
	SnoozeElapsed  time.Duration `json:"snooze_elapsed,omitempty"`
}

func (r *Reminder) ToRecord() Record {
	rec := Record{
		ID:                  r.ID,
		Action:              r.Action,
		CustomLabel:         r.CustomLabel,
		Kind:                r.Kind().String(),
		ExecutionBasis:      r.ExecutionBasis.UTC(),
		Enabled:             r.Enabled,
		PresentationHandled: r.PresentationHandled,
		SnoozeEnabled:       r.Snooze.Enabled,
		SnoozeInterval:      r.Snooze.Interval,
		SnoozeElapsed:       r.Snooze.Elapsed,
	}
	switch m := r.Mode.(type) {
	case *Countdown:
		rec.Interval, rec.Elapsed = m.Interval, m.Elapsed
	case *Weekly:
		rec.UTCHour, rec.UTCMinute = m.UTCHour, m.UTCMinute
		rec.Weekdays = append([]int(nil), m.Weekdays...)
		setSkip(&rec, m.Skip)
	case *Monthly:
		rec.UTCHour, rec.UTCMinute, rec.UTCDay = m.UTCHour, m.UTCMinute, m.UTCDay
		setSkip(&rec, m.Skip)
	case *OneTime:
		d := m.Date.UTC()
		rec.Date = &d
	}
	return rec
}

func setSkip(rec *Record, s SkipState) {
	if at, ok := s.SkippedAt(); ok {
		rec.Skipping = true
		rec.SkippedAt = &at
	}
}

// FromRecord rebuilds and validates a Reminder.
func FromRecord(rec Record) (*Reminder, error) {
	kind, err := ParseKind(rec.Kind)
	if err != nil {
		return nil, configErr("kind", "%v", err)
	}

	var skip SkipState
	if kind == KindWeekly || kind == KindMonthly {
		var at time.Time
		if rec.SkippedAt != nil {
			at = *rec.SkippedAt
		}
		if skip, err = RestoreSkip(rec.Skipping, at); err != nil {
			return nil, err
		}
	}

	var mode Mode
	switch kind {
	case KindCountdown:
		mode = &Countdown{Interval: rec.Interval, Elapsed: rec.Elapsed}
	case KindWeekly:
		mode = &Weekly{UTCHour: rec.UTCHour, UTCMinute: rec.UTCMinute, Weekdays: normalizeWeekdays(rec.Weekdays), Skip: skip}
	case KindMonthly:
		mode = &Monthly{UTCHour: rec.UTCHour, UTCMinute: rec.UTCMinute, UTCDay: rec.UTCDay, Skip: skip}
	case KindOneTime:
		if rec.Date == nil {
			return nil, configErr("date", "required")
		}
		mode = &OneTime{Date: rec.Date.UTC()}
	default:
		return nil, fmt.Errorf("unhandled kind %s", kind)
	}

	r := &Reminder{
		ID:                  rec.ID,
		Action:              rec.Action,
		CustomLabel:         rec.CustomLabel,
		ExecutionBasis:      rec.ExecutionBasis.UTC(),
		Enabled:             rec.Enabled,
		PresentationHandled: rec.PresentationHandled,
		Mode:                mode,
		Snooze: Snooze{
			Enabled:  rec.SnoozeEnabled,
			Interval: rec.SnoozeInterval,
			Elapsed:  rec.SnoozeElapsed,
		},
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
