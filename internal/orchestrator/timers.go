package orchestrator

import (
	"context"
	"time"

	"careclock/internal/eventbus"
	"careclock/internal/reminder"
	"careclock/pkg/logx"
)

// missedGrace separates a late timer from an alarm missed during downtime.
const missedGrace = time.Minute

// armLocked schedules the next wake-up for r: the earlier of the next fire
// and, while skipping, the auto-unskip instant. A running snooze can end
// before the skipped occurrence. Callers hold mu and the entry lock.
func (o *Orchestrator) armLocked(r *reminder.Reminder) {
	if !o.started || o.paused || !r.Enabled || r.PresentationHandled {
		o.cancel(r.ID)
		return
	}
	at, err := r.NextFire()
	if err == nil {
		var unskipAt time.Time
		var skipping bool
		unskipAt, skipping, err = r.AutoUnskipAt()
		if skipping && unskipAt.Before(at) {
			at = unskipAt
		}
	}
	if err != nil {
		o.log.Error("cannot compute next fire, reminder left unarmed", logx.Reminder(r.ID), logx.Err(err))
		o.cancel(r.ID)
		return
	}
	o.schedule(r.ID, at)
}

func (o *Orchestrator) rearmAllLocked() {
	for _, e := range o.entries {
		e.mu.Lock()
		o.armLocked(e.r)
		e.mu.Unlock()
	}
}

// schedule replaces the timer for id. Each timer carries a version so a
// callback that lost the race with a reschedule or cancel does nothing.
func (o *Orchestrator) schedule(id string, at time.Time) {
	delay := at.Sub(o.now())
	if delay < 0 {
		delay = 0
	}

	o.tmu.Lock()
	defer o.tmu.Unlock()
	if t, ok := o.timers[id]; ok {
		_ = t.Stop()
		delete(o.timers, id)
	}
	ver := o.timerVer[id] + 1
	o.timerVer[id] = ver

	o.timers[id] = time.AfterFunc(delay, func() {
		o.tmu.Lock()
		if o.timerVer[id] != ver {
			o.tmu.Unlock()
			return
		}
		delete(o.timers, id)
		o.tmu.Unlock()
		o.onTimer(id)
	})
}

func (o *Orchestrator) cancel(id string) {
	o.tmu.Lock()
	defer o.tmu.Unlock()
	if t, ok := o.timers[id]; ok {
		_ = t.Stop()
		delete(o.timers, id)
	}
	o.timerVer[id]++
}

func (o *Orchestrator) cancelAll() {
	o.tmu.Lock()
	defer o.tmu.Unlock()
	for id, t := range o.timers {
		_ = t.Stop()
		o.timerVer[id]++
	}
	o.timers = map[string]*time.Timer{}
}

func (o *Orchestrator) armed(id string) bool {
	o.tmu.Lock()
	defer o.tmu.Unlock()
	_, ok := o.timers[id]
	return ok
}

func (o *Orchestrator) onTimer(id string) {
	o.mu.RLock()
	if !o.started || o.paused {
		o.mu.RUnlock()
		return
	}
	ctx := o.baseCtx
	e, ok := o.entries[id]
	if !ok {
		o.mu.RUnlock()
		return
	}
	e.mu.Lock()
	alarm := o.advanceLocked(ctx, e, o.now())
	e.mu.Unlock()
	o.mu.RUnlock()

	if alarm != nil {
		o.deliver(ctx, *alarm)
	}
}

// advanceLocked applies an auto-unskip that has come due and, if the
// reminder's next fire is not in the future, marks it presented and returns
// the alarm to deliver. Otherwise the timer is re-armed.
func (o *Orchestrator) advanceLocked(ctx context.Context, e *entry, now time.Time) *Alarm {
	r := e.r
	if !r.Enabled || r.PresentationHandled {
		return nil
	}
	cp := r.Clone()
	unskipped, err := cp.AutoUnskip(now)
	if err != nil {
		o.log.Error("auto unskip failed", logx.Reminder(r.ID), logx.Err(err))
		o.cancel(r.ID)
		return nil
	}
	next, err := cp.NextFire()
	if err != nil {
		o.log.Error("cannot compute next fire, reminder left unarmed", logx.Reminder(r.ID), logx.Err(err))
		o.cancel(r.ID)
		return nil
	}

	if next.After(now) {
		if unskipped {
			e.r = cp
			o.persist(ctx, cp)
			o.log.Info("skip elapsed, reminder unskipped", logx.Reminder(cp.ID), logx.Instant("next", next))
			o.publish(eventbus.ReminderUnskipped, cp.ID, cp.Kind(), next)
		}
		o.armLocked(e.r)
		return nil
	}

	alarm := &Alarm{
		ReminderID: cp.ID,
		Kind:       cp.Kind(),
		Label:      cp.Label(),
		Scheduled:  next,
		FiredAt:    now,
	}
	if now.Sub(next) > missedGrace {
		alarm.Missed = true
		if _, calendar := cp.SkipState(); calendar && !cp.Snooze.Enabled {
			probe := cp.Clone()
			probe.ExecutionBasis = now
			if prev, err := probe.PreviousFire(); err == nil && prev.After(next) {
				alarm.Scheduled = prev
			}
		}
	}

	cp.PresentationHandled = true
	e.r = cp
	o.cancel(cp.ID)
	o.persist(ctx, cp)
	return alarm
}

func (o *Orchestrator) deliver(ctx context.Context, a Alarm) {
	log := o.log.With(logx.Reminder(a.ReminderID))
	log.Info("alarm due", logx.String("kind", a.Kind.String()), logx.Instant("scheduled", a.Scheduled), logx.Bool("missed", a.Missed))
	if o.alarms != nil {
		if err := o.alarms.Fire(ctx, a); err != nil {
			log.Warn("alarm sink rejected alarm", logx.Err(err))
		}
	}
	o.publish(eventbus.ReminderFired, a.ReminderID, a.Kind, a.Scheduled)

	if o.autoReset {
		firedAt := a.FiredAt
		if _, err := o.ResetAfterFiring(ctx, a.ReminderID, &firedAt); err != nil {
			log.Warn("auto reset failed", logx.Err(err))
		}
	}
}
