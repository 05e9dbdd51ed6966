package reminder

import "time"

// Countdown fires Interval after the execution basis, minus whatever was
// already consumed before a pause.
type Countdown struct {
	Interval time.Duration
	Elapsed  time.Duration
}

func NewCountdown(interval time.Duration) (*Countdown, error) {
	c := &Countdown{Interval: interval}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Countdown) Kind() Kind { return KindCountdown }

func (c *Countdown) Validate() error {
	return validateInterval("interval", c.Interval, c.Elapsed)
}

// Remaining never goes negative: zero means the alarm was already due.
func (c *Countdown) Remaining() time.Duration { return remaining(c.Interval, c.Elapsed) }

func (c *Countdown) Candidates(basis time.Time) []time.Time {
	return []time.Time{basis.Add(c.Remaining())}
}

func (c *Countdown) clone() Mode {
	cp := *c
	return &cp
}

// Snooze is a temporary countdown overlay. While Enabled it takes timing
// priority over the reminder's mode.
type Snooze struct {
	Enabled  bool
	Interval time.Duration
	Elapsed  time.Duration
}

func (s Snooze) Remaining() time.Duration { return remaining(s.Interval, s.Elapsed) }

func (s Snooze) Validate() error {
	if !s.Enabled {
		return nil
	}
	return validateInterval("snooze_interval", s.Interval, s.Elapsed)
}

func remaining(interval, elapsed time.Duration) time.Duration {
	if left := interval - elapsed; left > 0 {
		return left
	}
	return 0
}

// accrue adds the time between basis and a pause at instant at to elapsed.
// The first pause after a reset measures from the timer start; later pauses
// measure from the last resume, which is the basis again after Resume.
func accrue(elapsed time.Duration, basis, at time.Time) time.Duration {
	if span := at.Sub(basis); span > 0 {
		return elapsed + span
	}
	return elapsed
}

func validateInterval(field string, interval, elapsed time.Duration) error {
	if interval <= 0 {
		return configErr(field, "must be positive, got %s", interval)
	}
	if elapsed < 0 {
		return configErr(field, "elapsed must not be negative, got %s", elapsed)
	}
	return nil
}
