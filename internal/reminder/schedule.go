package reminder

import "time"

// NextFire is the next instant the reminder should fire. It depends only on
// the reminder's fields, so repeated calls without mutation agree.
//
// A skipping calendar reminder fires on the occurrence after the skipped
// one. An enabled snooze overrides the mode.
func (r *Reminder) NextFire() (time.Time, error) {
	if r.Snooze.Enabled {
		return r.ExecutionBasis.Add(r.Snooze.Remaining()), nil
	}
	switch m := r.Mode.(type) {
	case nil:
		return time.Time{}, configErr("mode", "required")
	case calendar:
		cands, err := calendarCandidates(m, r.ExecutionBasis)
		if err != nil {
			return time.Time{}, err
		}
		if m.skipState().skipping {
			return cands[1], nil
		}
		return cands[0], nil
	default:
		cands := m.Candidates(r.ExecutionBasis)
		if len(cands) == 0 {
			return time.Time{}, &ClockAnomalyError{Kind: m.Kind(), Basis: r.ExecutionBasis, Reason: "rule produced no candidates"}
		}
		return cands[0], nil
	}
}

// PreviousFire is the most recent occurrence at or before the execution
// basis. Elapsed-accounted timers report the basis itself.
func (r *Reminder) PreviousFire() (time.Time, error) {
	if r.Snooze.Enabled {
		return r.ExecutionBasis, nil
	}
	switch m := r.Mode.(type) {
	case nil:
		return time.Time{}, configErr("mode", "required")
	case *OneTime:
		return m.Date, nil
	case calendar:
		cands, err := calendarCandidates(m, r.ExecutionBasis)
		if err != nil {
			return time.Time{}, err
		}
		prev := m.previous(r.ExecutionBasis, cands[0])
		if prev.IsZero() || prev.After(r.ExecutionBasis) {
			return time.Time{}, &ClockAnomalyError{Kind: m.Kind(), Basis: r.ExecutionBasis, Got: prev, Reason: "previous occurrence after basis"}
		}
		return prev, nil
	default:
		return r.ExecutionBasis, nil
	}
}

// ResetAfterFiring starts a fresh cycle at now. A one-time reminder is
// consumed instead and the caller must delete it; consumed reports that.
func (r *Reminder) ResetAfterFiring(now time.Time) (consumed bool) {
	if _, ok := r.Mode.(*OneTime); ok {
		return true
	}
	if c, ok := r.Mode.(*Countdown); ok {
		c.Elapsed = 0
	}
	if c, ok := r.Mode.(calendar); ok {
		c.skipState().clear()
	}
	r.Snooze = Snooze{}
	r.ExecutionBasis = now
	r.PresentationHandled = false
	return false
}

// RequestSkip suppresses the next calendar occurrence and returns the
// instant a skip log may be attached to.
func (r *Reminder) RequestSkip(now time.Time) (time.Time, error) {
	c, ok := r.Mode.(calendar)
	if !ok {
		return time.Time{}, &InvalidOperationError{Op: "skip", Kind: r.Kind()}
	}
	s := c.skipState()
	if s.skipping {
		return time.Time{}, &InvalidOperationError{Op: "skip", Kind: r.Kind(), Reason: "already skipping"}
	}
	s.set(now)
	return s.skippedAt, nil
}

// ClearSkip is the manual unskip. When lookup reports an unmodified log for
// the skip, its id is returned so the caller can remove it. The execution
// basis is left alone.
func (r *Reminder) ClearSkip(lookup SkipLogLookup) (logID string, err error) {
	c, ok := r.Mode.(calendar)
	if !ok {
		return "", &InvalidOperationError{Op: "unskip", Kind: r.Kind()}
	}
	s := c.skipState()
	if !s.skipping {
		return "", &InvalidOperationError{Op: "unskip", Kind: r.Kind(), Reason: "not skipping"}
	}
	at := s.skippedAt
	s.clear()
	if lookup != nil {
		if id, found := lookup(at); found {
			logID = id
		}
	}
	return logID, nil
}

// AutoUnskipAt is the instant the skipped occurrence would have fired. ok is
// false when the reminder is not skipping.
func (r *Reminder) AutoUnskipAt() (at time.Time, ok bool, err error) {
	c, isCal := r.Mode.(calendar)
	if !isCal || !c.skipState().skipping {
		return time.Time{}, false, nil
	}
	cands, err := calendarCandidates(c, r.ExecutionBasis)
	if err != nil {
		return time.Time{}, false, err
	}
	return cands[0], true, nil
}

// AutoUnskip clears a skip once now has reached the skipped occurrence. The
// basis moves to that occurrence so the cadence continues from it, unless a
// snooze is running, in which case the basis stays the snooze start. No log
// is touched.
func (r *Reminder) AutoUnskip(now time.Time) (bool, error) {
	at, ok, err := r.AutoUnskipAt()
	if err != nil || !ok || now.Before(at) {
		return false, err
	}
	r.Mode.(calendar).skipState().clear()
	if r.Snooze.Enabled {
		return true, nil
	}
	r.ExecutionBasis = at
	r.PresentationHandled = false
	return true, nil
}

// Pause folds the time since the basis into the active countdown's elapsed
// total. Calendar and one-time reminders are unaffected. Disabled reminders
// are not paused.
func (r *Reminder) Pause(at time.Time) {
	if !r.Enabled {
		return
	}
	if r.Snooze.Enabled {
		r.Snooze.Elapsed = accrue(r.Snooze.Elapsed, r.ExecutionBasis, at)
		return
	}
	if c, ok := r.Mode.(*Countdown); ok {
		c.Elapsed = accrue(c.Elapsed, r.ExecutionBasis, at)
	}
}

// Resume restarts an elapsed-accounted timer at instant at. Elapsed is kept,
// so the remaining time equals what it was at the pause.
func (r *Reminder) Resume(at time.Time) {
	if !r.Enabled {
		return
	}
	if r.Snooze.Enabled {
		r.ExecutionBasis = at
		return
	}
	if _, ok := r.Mode.(*Countdown); ok {
		r.ExecutionBasis = at
	}
}

// PauseAll pauses every reminder at the same instant.
func PauseAll(rs []*Reminder, at time.Time) {
	for _, r := range rs {
		r.Pause(at)
	}
}

// ResumeAll resumes every reminder at the same instant.
func ResumeAll(rs []*Reminder, at time.Time) {
	for _, r := range rs {
		r.Resume(at)
	}
}

// StartSnooze overlays a countdown of interval starting at now.
func (r *Reminder) StartSnooze(interval time.Duration, now time.Time) error {
	s := Snooze{Enabled: true, Interval: interval}
	if err := s.Validate(); err != nil {
		return err
	}
	r.Snooze = s
	r.ExecutionBasis = now
	r.PresentationHandled = false
	return nil
}
