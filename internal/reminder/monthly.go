package reminder

import "time"

// Monthly fires at UTCHour:UTCMinute UTC on UTCDay of every month. Months
// shorter than UTCDay fire on their last day; UTCDay itself is never
// rewritten.
type Monthly struct {
	UTCHour   int
	UTCMinute int
	UTCDay    int
	Skip      SkipState
}

func NewMonthly(utcHour, utcMinute, utcDay int) (*Monthly, error) {
	m := &Monthly{UTCHour: utcHour, UTCMinute: utcMinute, UTCDay: utcDay}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Monthly) Kind() Kind { return KindMonthly }

func (m *Monthly) Validate() error {
	if err := validateClock(m.UTCHour, m.UTCMinute); err != nil {
		return err
	}
	if m.UTCDay < 1 || m.UTCDay > 31 {
		return configErr("utc_day", "%d outside 1..31", m.UTCDay)
	}
	return nil
}

// Candidates returns the next occurrence after basis and the one a month
// later.
func (m *Monthly) Candidates(basis time.Time) []time.Time {
	b := basis.UTC()
	first := m.in(b.Year(), b.Month())
	if !first.After(basis) {
		first = m.in(b.Year(), b.Month()+1)
	}
	return []time.Time{first, m.in(first.Year(), first.Month()+1)}
}

func (m *Monthly) previous(_, next time.Time) time.Time {
	return m.in(next.Year(), next.Month()-1)
}

// in is the occurrence inside the given month, clamped to its last day.
func (m *Monthly) in(year int, month time.Month) time.Time {
	return atUTC(year, month, m.UTCDay, m.UTCHour, m.UTCMinute)
}

func (m *Monthly) skipState() *SkipState { return &m.Skip }

func (m *Monthly) clone() Mode {
	cp := *m
	return &cp
}
