package orchestrator

import (
	"fmt"
	"sort"
	"time"

	"careclock/internal/reminder"
)

func (o *Orchestrator) ids() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.entries))
	for id := range o.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Get returns a copy of the reminder.
func (o *Orchestrator) Get(id string) (*reminder.Reminder, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.r.Clone(), nil
}

// List returns copies of all reminders ordered by id.
func (o *Orchestrator) List() []*reminder.Reminder {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*reminder.Reminder, 0, len(o.entries))
	for _, e := range o.entries {
		e.mu.RLock()
		out = append(out, e.r.Clone())
		e.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NextFireInstant computes the next fire from a consistent copy of the
// reminder.
func (o *Orchestrator) NextFireInstant(id string) (time.Time, error) {
	r, err := o.Get(id)
	if err != nil {
		return time.Time{}, err
	}
	return r.NextFire()
}

// PreviousFireInstant computes the latest occurrence at or before the
// reminder's execution basis.
func (o *Orchestrator) PreviousFireInstant(id string) (time.Time, error) {
	r, err := o.Get(id)
	if err != nil {
		return time.Time{}, err
	}
	return r.PreviousFire()
}

// DueItem is a reminder whose next fire is not after the probe instant.
type DueItem struct {
	ID   string
	Next time.Time
}

// Due lists enabled, unpresented reminders that would fire at or before now,
// taking elapsed skips into account, earliest first. Nothing is due while
// reminders are paused. It changes nothing.
func (o *Orchestrator) Due(now time.Time) []DueItem {
	if paused, _ := o.Paused(); paused {
		return nil
	}
	var out []DueItem
	for _, r := range o.List() {
		if !r.Enabled || r.PresentationHandled {
			continue
		}
		if _, err := r.AutoUnskip(now); err != nil {
			continue
		}
		next, err := r.NextFire()
		if err != nil || next.After(now) {
			continue
		}
		out = append(out, DueItem{ID: r.ID, Next: next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

// Status describes one reminder for diagnostics.
type Status struct {
	ID       string
	Kind     string
	Label    string
	Enabled  bool
	Handled  bool
	Skipping bool
	Snoozed  bool
	Armed    bool
	Next     time.Time
	Previous time.Time
	Err      string
}

type Snapshot struct {
	Started   bool
	Paused    bool
	PausedAt  time.Time
	Reminders []Status
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	snap := Snapshot{Started: o.started, Paused: o.paused, PausedAt: o.pausedAt}
	o.mu.RUnlock()

	for _, r := range o.List() {
		st := Status{
			ID:       r.ID,
			Kind:     r.Kind().String(),
			Label:    r.Label(),
			Enabled:  r.Enabled,
			Handled:  r.PresentationHandled,
			Skipping: isSkipping(r),
			Snoozed:  r.Snooze.Enabled,
			Armed:    o.armed(r.ID),
		}
		var err error
		if st.Next, err = r.NextFire(); err == nil {
			st.Previous, err = r.PreviousFire()
		}
		if err != nil {
			st.Err = err.Error()
		}
		snap.Reminders = append(snap.Reminders, st)
	}
	return snap
}
