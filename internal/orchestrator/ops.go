package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"careclock/internal/eventbus"
	"careclock/internal/reminder"
	"careclock/pkg/logx"
)

// ResetResult reports what ResetAfterFiring did.
type ResetResult struct {
	// Deleted is set when a one-time reminder was consumed.
	Deleted bool
	Next    time.Time
	// LogID is the occurrence log written for loggedAt, if any.
	LogID string
}

var errConsumed = errors.New("one-time reminder consumed")

// mutate applies fn to a copy of the reminder and commits the copy only when
// fn and validation succeed, so a failed operation leaves no trace.
func (o *Orchestrator) mutate(ctx context.Context, id string, fn func(r *reminder.Reminder, now time.Time) error) (*reminder.Reminder, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := e.r.Clone()
	if err := fn(cp, o.now()); err != nil {
		return nil, err
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	e.r = cp
	o.armLocked(cp)
	o.persist(ctx, cp)
	return cp.Clone(), nil
}

func nextOrZero(r *reminder.Reminder) time.Time {
	next, err := r.NextFire()
	if err != nil {
		return time.Time{}
	}
	return next
}

// Add registers a new reminder. A reminder without an id gets one.
func (o *Orchestrator) Add(ctx context.Context, r *reminder.Reminder) (*reminder.Reminder, error) {
	cp := r.Clone()
	if cp == nil {
		return nil, errors.New("nil reminder")
	}
	if cp.ID == "" {
		cp.ID = reminder.NewID()
	}
	if cp.ExecutionBasis.IsZero() {
		cp.ExecutionBasis = o.now()
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if _, dup := o.entries[cp.ID]; dup {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrExists, cp.ID)
	}
	o.entries[cp.ID] = &entry{r: cp}
	o.armLocked(cp)
	o.persist(ctx, cp)
	o.mu.Unlock()

	next := nextOrZero(cp)
	o.log.Info("reminder added", logx.Reminder(cp.ID), logx.String("kind", cp.Kind().String()), logx.Instant("next", next))
	o.publish(eventbus.ReminderAdded, cp.ID, cp.Kind(), next)
	return cp.Clone(), nil
}

// Update replaces a reminder's fields wholesale. The id must exist.
func (o *Orchestrator) Update(ctx context.Context, r *reminder.Reminder) (*reminder.Reminder, error) {
	if r == nil {
		return nil, errors.New("nil reminder")
	}
	in := r.Clone()
	out, err := o.mutate(ctx, in.ID, func(cur *reminder.Reminder, _ time.Time) error {
		*cur = *in
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.publish(eventbus.ReminderUpdated, out.ID, out.Kind(), nextOrZero(out))
	return out, nil
}

// Delete removes a reminder and cancels its pending timer only.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	o.mu.Lock()
	e, ok := o.entries[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(o.entries, id)
	o.cancel(id)
	kind := e.r.Kind()
	if o.store != nil {
		if err := o.store.DeleteReminder(ctx, id); err != nil {
			o.log.Warn("persist delete failed", logx.Reminder(id), logx.Err(err))
		}
	}
	o.mu.Unlock()

	o.log.Info("reminder deleted", logx.Reminder(id))
	o.publish(eventbus.ReminderDeleted, id, kind, time.Time{})
	return nil
}

// SetEnabled toggles a reminder. Disabling cancels its timer; enabling a
// recurring reminder starts a fresh cycle at now.
func (o *Orchestrator) SetEnabled(ctx context.Context, id string, enabled bool) (*reminder.Reminder, error) {
	out, err := o.mutate(ctx, id, func(r *reminder.Reminder, now time.Time) error {
		if r.Enabled == enabled {
			return nil
		}
		r.Enabled = enabled
		if enabled {
			r.ResetAfterFiring(now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.log.Info("reminder enabled changed", logx.Reminder(id), logx.Bool("enabled", enabled))
	o.publish(eventbus.ReminderUpdated, out.ID, out.Kind(), nextOrZero(out))
	return out, nil
}

// ResetAfterFiring starts a reminder's next cycle at now. A one-time
// reminder is deleted instead. When loggedAt is set an occurrence log is
// recorded for it.
func (o *Orchestrator) ResetAfterFiring(ctx context.Context, id string, loggedAt *time.Time) (ResetResult, error) {
	var before *reminder.Reminder
	out, err := o.mutate(ctx, id, func(r *reminder.Reminder, now time.Time) error {
		before = r.Clone()
		if r.ResetAfterFiring(now) {
			return errConsumed
		}
		return nil
	})

	var res ResetResult
	switch {
	case errors.Is(err, errConsumed):
		if err := o.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			return res, err
		}
		res.Deleted = true
	case err != nil:
		return res, err
	default:
		res.Next = nextOrZero(out)
		o.publish(eventbus.ReminderReset, out.ID, out.Kind(), res.Next)
	}

	if loggedAt != nil && before != nil {
		occ := reminder.NewOccurrence(before, reminder.OccurrenceFired, *loggedAt)
		o.record(ctx, occ)
		res.LogID = occ.ID
	}
	o.log.Debug("reminder reset", logx.Reminder(id), logx.Bool("deleted", res.Deleted), logx.Instant("next", res.Next))
	return res, nil
}

// Snooze overlays a countdown of interval starting now.
func (o *Orchestrator) Snooze(ctx context.Context, id string, interval time.Duration) (*reminder.Reminder, error) {
	out, err := o.mutate(ctx, id, func(r *reminder.Reminder, now time.Time) error {
		return r.StartSnooze(interval, now)
	})
	if err != nil {
		return nil, err
	}
	o.publish(eventbus.ReminderSnoozed, out.ID, out.Kind(), nextOrZero(out))
	return out, nil
}

// RequestSkip suppresses the next occurrence of a calendar reminder and
// records a skip log at the request instant.
func (o *Orchestrator) RequestSkip(ctx context.Context, id string) (time.Time, error) {
	var skippedAt time.Time
	out, err := o.mutate(ctx, id, func(r *reminder.Reminder, now time.Time) error {
		at, err := r.RequestSkip(now)
		skippedAt = at
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	o.record(ctx, reminder.NewOccurrence(out, reminder.OccurrenceSkipped, skippedAt))
	next := nextOrZero(out)
	o.log.Info("reminder skipped", logx.Reminder(id), logx.Instant("next", next))
	o.publish(eventbus.ReminderSkipped, out.ID, out.Kind(), next)
	return skippedAt, nil
}

// ClearSkip is the manual unskip. The skip log is removed when it still
// exists unmodified; its id is returned. A failed log lookup aborts the
// unskip with the reminder unchanged.
func (o *Orchestrator) ClearSkip(ctx context.Context, id string) (string, error) {
	lookup, err := o.skipLogLookup(ctx, id)
	if err != nil {
		return "", err
	}
	var logID string
	out, err := o.mutate(ctx, id, func(r *reminder.Reminder, _ time.Time) error {
		got, err := r.ClearSkip(lookup)
		logID = got
		return err
	})
	if err != nil {
		return "", err
	}
	if logID != "" && o.logs != nil {
		if err := o.logs.DeleteLog(ctx, logID); err != nil {
			o.log.Warn("delete skip log failed", logx.Reminder(id), logx.String("log", logID), logx.Err(err))
		}
	}
	o.log.Info("reminder unskipped", logx.Reminder(id), logx.String("removed_log", logID))
	o.publish(eventbus.ReminderUnskipped, out.ID, out.Kind(), nextOrZero(out))
	return logID, nil
}

// skipLogLookup resolves the skip log for the reminder's current skip before
// any state changes. The returned lookup only answers for that same skip.
func (o *Orchestrator) skipLogLookup(ctx context.Context, id string) (reminder.SkipLogLookup, error) {
	r, err := o.Get(id)
	if err != nil {
		return nil, err
	}
	s, _ := r.SkipState()
	skippedAt, skipping := s.SkippedAt()
	if o.logs == nil || !skipping {
		return nil, nil
	}
	logID, found, err := o.logs.FindSkipLog(ctx, id, skippedAt)
	if err != nil {
		return nil, fmt.Errorf("find skip log for %s: %w", id, err)
	}
	return func(at time.Time) (string, bool) {
		if !found || !at.Equal(skippedAt) {
			return "", false
		}
		return logID, true
	}, nil
}

// PauseAll suspends every timer and folds elapsed time into countdowns, all
// at the same instant. It is a no-op when already paused.
func (o *Orchestrator) PauseAll(ctx context.Context, at time.Time) error {
	o.mu.Lock()
	if o.paused {
		o.mu.Unlock()
		return nil
	}
	for _, e := range o.entries {
		cp := e.r.Clone()
		cp.Pause(at)
		e.r = cp
	}
	o.paused = true
	o.pausedAt = at
	o.cancelAll()
	o.persistAllLocked(ctx)
	n := len(o.entries)
	o.mu.Unlock()

	o.log.Info("reminders paused", logx.Int("count", n), logx.Time("at", at))
	o.publish(eventbus.RemindersPaused, "", reminder.KindUnknown, time.Time{})
	return nil
}

// ResumeAll restarts elapsed-accounted timers at the same instant and re-arms
// every reminder. It is a no-op when not paused.
func (o *Orchestrator) ResumeAll(ctx context.Context, at time.Time) error {
	o.mu.Lock()
	if !o.paused {
		o.mu.Unlock()
		return nil
	}
	for _, e := range o.entries {
		cp := e.r.Clone()
		cp.Resume(at)
		e.r = cp
	}
	o.paused = false
	o.pausedAt = time.Time{}
	o.rearmAllLocked()
	o.persistAllLocked(ctx)
	n := len(o.entries)
	o.mu.Unlock()

	o.log.Info("reminders resumed", logx.Int("count", n), logx.Time("at", at))
	o.publish(eventbus.RemindersResumed, "", reminder.KindUnknown, time.Time{})
	return nil
}

func (o *Orchestrator) persistAllLocked(ctx context.Context) {
	if o.store == nil {
		return
	}
	for _, e := range o.entries {
		o.persist(ctx, e.r)
	}
	if err := o.store.SavePaused(ctx, o.paused, o.pausedAt); err != nil {
		o.log.Warn("persist pause state failed", logx.Err(err))
	}
}

// ReconcileReport summarizes a Reconcile pass.
type ReconcileReport struct {
	Checked   int
	Unskipped int
	Fired     int
}

// Reconcile catches up on everything that came due without a timer firing,
// e.g. while the process was down: elapsed skips are cleared and missed
// alarms are delivered. Nothing happens while paused.
func (o *Orchestrator) Reconcile(ctx context.Context) ReconcileReport {
	var rep ReconcileReport
	for _, id := range o.ids() {
		o.mu.RLock()
		if o.paused {
			o.mu.RUnlock()
			return rep
		}
		e, ok := o.entries[id]
		if !ok {
			o.mu.RUnlock()
			continue
		}
		e.mu.Lock()
		wasSkipping := isSkipping(e.r)
		alarm := o.advanceLocked(ctx, e, o.now())
		if wasSkipping && !isSkipping(e.r) {
			rep.Unskipped++
		}
		e.mu.Unlock()
		o.mu.RUnlock()

		rep.Checked++
		if alarm != nil {
			rep.Fired++
			o.deliver(ctx, *alarm)
		}
	}
	if rep.Fired > 0 || rep.Unskipped > 0 {
		o.log.Info("reconcile caught up", logx.Int("fired", rep.Fired), logx.Int("unskipped", rep.Unskipped))
	}
	return rep
}

func isSkipping(r *reminder.Reminder) bool {
	s, ok := r.SkipState()
	return ok && s.Skipping()
}
