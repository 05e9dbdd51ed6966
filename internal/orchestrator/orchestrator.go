package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"careclock/internal/eventbus"
	"careclock/internal/reminder"
	"careclock/pkg/logx"
)

var (
	ErrNotFound = errors.New("reminder not found")
	ErrExists   = errors.New("reminder already exists")
)

// Alarm is a reminder occurrence handed to the alarm sink when it comes due.
type Alarm struct {
	ReminderID string
	Kind       reminder.Kind
	Label      string
	// Scheduled is the occurrence being reported. For an alarm missed while
	// the process was down it is the latest occurrence before FiredAt.
	Scheduled time.Time
	FiredAt   time.Time
	Missed    bool
}

// AlarmSink receives due alarms. Fire must not block on delivery.
type AlarmSink interface {
	Fire(ctx context.Context, a Alarm) error
}

// LogSink stores occurrence logs for fired and skipped reminders.
type LogSink interface {
	RecordOccurrence(ctx context.Context, occ reminder.Occurrence) error
	// FindSkipLog returns the id of an unmodified skip log for reminderID at
	// the given instant.
	FindSkipLog(ctx context.Context, reminderID string, at time.Time) (id string, ok bool, err error)
	DeleteLog(ctx context.Context, id string) error
}

// Persister stores reminder state after every committed mutation.
type Persister interface {
	SaveReminder(ctx context.Context, r *reminder.Reminder) error
	DeleteReminder(ctx context.Context, id string) error
	SavePaused(ctx context.Context, paused bool, at time.Time) error
}

type Option func(*Orchestrator)

// WithClock replaces time.Now. Timers still run on the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(o *Orchestrator) { o.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(o *Orchestrator) { o.bus = bus } }

func WithAlarmSink(s AlarmSink) Option { return func(o *Orchestrator) { o.alarms = s } }

func WithLogSink(s LogSink) Option { return func(o *Orchestrator) { o.logs = s } }

func WithPersister(p Persister) Option { return func(o *Orchestrator) { o.store = p } }

// WithAutoReset makes a fired reminder start its next cycle immediately
// instead of waiting for ResetAfterFiring.
func WithAutoReset(on bool) Option { return func(o *Orchestrator) { o.autoReset = on } }

type entry struct {
	mu sync.RWMutex
	r  *reminder.Reminder
}

// Orchestrator owns a collection of reminders and their pending timers.
//
// Lock order: mu, then entry.mu, then tmu. Per-reminder operations hold mu
// for reading and the entry lock for writing, so at most one mutation per
// reminder is in flight. PauseAll and ResumeAll hold mu for writing.
type Orchestrator struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	paused   bool
	pausedAt time.Time
	started  bool
	baseCtx  context.Context

	now       func() time.Time
	log       logx.Logger
	bus       eventbus.Bus
	alarms    AlarmSink
	logs      LogSink
	store     Persister
	autoReset bool

	tmu      sync.Mutex
	timers   map[string]*time.Timer
	timerVer map[string]uint64
}

func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		entries:  map[string]*entry{},
		baseCtx:  context.Background(),
		now:      time.Now,
		timers:   map[string]*time.Timer{},
		timerVer: map[string]uint64{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With(logx.Component("orchestrator"))
	return o
}

// Now is the orchestrator's clock.
func (o *Orchestrator) Now() time.Time { return o.now() }

// Restore loads persisted reminders and the pause flag. It does not persist
// anything back. Invalid reminders are skipped and reported.
func (o *Orchestrator) Restore(rs []*reminder.Reminder, paused bool, pausedAt time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", r.ID, err))
			continue
		}
		if _, dup := o.entries[r.ID]; dup {
			errs = append(errs, fmt.Errorf("restore %s: %w", r.ID, ErrExists))
			continue
		}
		o.entries[r.ID] = &entry{r: r.Clone()}
	}
	o.paused = paused
	o.pausedAt = pausedAt
	if o.started {
		o.rearmAllLocked()
	}
	o.log.Info("reminders restored", logx.Int("count", len(o.entries)), logx.Bool("paused", paused))
	return errors.Join(errs...)
}

// Start arms a timer for every enabled reminder. Sink calls made from timer
// callbacks use ctx.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.started = true
	o.baseCtx = ctx
	o.rearmAllLocked()
	o.log.Info("orchestrator started", logx.Int("reminders", len(o.entries)), logx.Bool("paused", o.paused))
}

// Stop cancels every pending timer. Reminder state is kept.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return
	}
	o.started = false
	o.cancelAll()
	o.log.Info("orchestrator stopped")
}

// Paused reports the global pause flag and when it was set.
func (o *Orchestrator) Paused() (bool, time.Time) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.paused, o.pausedAt
}

func (o *Orchestrator) publish(typ, id string, kind reminder.Kind, next time.Time) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(eventbus.Event{
		Type: typ,
		Time: o.now(),
		Data: eventbus.ReminderData{ID: id, Kind: kind.String(), Next: next},
	})
}

func (o *Orchestrator) persist(ctx context.Context, r *reminder.Reminder) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveReminder(ctx, r); err != nil {
		o.log.Warn("persist reminder failed", logx.Reminder(r.ID), logx.Err(err))
	}
}

func (o *Orchestrator) record(ctx context.Context, occ reminder.Occurrence) {
	if o.logs == nil {
		return
	}
	if err := o.logs.RecordOccurrence(ctx, occ); err != nil {
		o.log.Warn("record occurrence failed", logx.Reminder(occ.ReminderID), logx.String("kind", string(occ.Kind)), logx.Err(err))
	}
}
