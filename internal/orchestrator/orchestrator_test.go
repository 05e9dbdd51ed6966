package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"careclock/internal/eventbus"
	"careclock/internal/reminder"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type chanSink struct{ ch chan Alarm }

func newChanSink() *chanSink { return &chanSink{ch: make(chan Alarm, 64)} }

func (s *chanSink) Fire(_ context.Context, a Alarm) error {
	select {
	case s.ch <- a:
		return nil
	default:
		return errors.New("sink full")
	}
}

type memLogs struct {
	mu   sync.Mutex
	logs map[string]reminder.Occurrence
}

func newMemLogs() *memLogs { return &memLogs{logs: map[string]reminder.Occurrence{}} }

func (m *memLogs) RecordOccurrence(_ context.Context, occ reminder.Occurrence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[occ.ID] = occ
	return nil
}

func (m *memLogs) FindSkipLog(_ context.Context, reminderID string, at time.Time) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, occ := range m.logs {
		if occ.ReminderID == reminderID && occ.Kind == reminder.OccurrenceSkipped && occ.At.Equal(at) && !occ.Modified {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (m *memLogs) DeleteLog(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logs, id)
	return nil
}

func (m *memLogs) byKind(kind reminder.OccurrenceKind) []reminder.Occurrence {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reminder.Occurrence
	for _, occ := range m.logs {
		if occ.Kind == kind {
			out = append(out, occ)
		}
	}
	return out
}

func (m *memLogs) markAllModified() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, occ := range m.logs {
		occ.Modified = true
		m.logs[id] = occ
	}
}

type memStore struct {
	mu       sync.Mutex
	saves    int
	deletes  []string
	paused   bool
	pausedAt time.Time
}

func (m *memStore) SaveReminder(context.Context, *reminder.Reminder) error {
	m.mu.Lock()
	m.saves++
	m.mu.Unlock()
	return nil
}

func (m *memStore) DeleteReminder(_ context.Context, id string) error {
	m.mu.Lock()
	m.deletes = append(m.deletes, id)
	m.mu.Unlock()
	return nil
}

func (m *memStore) SavePaused(_ context.Context, paused bool, at time.Time) error {
	m.mu.Lock()
	m.paused, m.pausedAt = paused, at
	m.mu.Unlock()
	return nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func utc(y int, mo time.Month, d, h, mi int) time.Time {
	return time.Date(y, mo, d, h, mi, 0, 0, time.UTC)
}

func mustAdd(t *testing.T, o *Orchestrator, mode reminder.Mode, basis time.Time) *reminder.Reminder {
	t.Helper()
	r, err := reminder.New(mode, basis)
	if err != nil {
		t.Fatalf("reminder.New: %v", err)
	}
	out, err := o.Add(context.Background(), r)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return out
}

func TestSkipThenReconcileAutoUnskipsAtSkippedOccurrence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{t: utc(2024, time.January, 1, 7, 0)} // Monday
	sink, logs := newChanSink(), newMemLogs()
	o := New(WithClock(clock.Now), WithAlarmSink(sink), WithLogSink(logs))

	w, _ := reminder.NewWeekly(8, 0, 2, 4, 6)
	r := mustAdd(t, o, w, clock.Now())

	clock.Advance(30 * time.Minute)
	skippedAt, err := o.RequestSkip(ctx, r.ID)
	if err != nil {
		t.Fatalf("RequestSkip: %v", err)
	}
	if got := logs.byKind(reminder.OccurrenceSkipped); len(got) != 1 || !got[0].At.Equal(skippedAt) {
		t.Fatalf("skip logs = %+v, want one at %v", got, skippedAt)
	}
	next, err := o.NextFireInstant(r.ID)
	if want := utc(2024, time.January, 3, 8, 0); err != nil || !next.Equal(want) {
		t.Fatalf("NextFireInstant = %v, %v; want Wednesday %v", next, err, want)
	}

	clock.Set(utc(2024, time.January, 1, 7, 59))
	if rep := o.Reconcile(ctx); rep.Unskipped != 0 || rep.Fired != 0 {
		t.Fatalf("reconcile before skipped occurrence = %+v", rep)
	}

	clock.Set(utc(2024, time.January, 1, 8, 0))
	if rep := o.Reconcile(ctx); rep.Unskipped != 1 || rep.Fired != 0 {
		t.Fatalf("reconcile at skipped occurrence = %+v, want one unskip and no alarm", rep)
	}
	got, _ := o.Get(r.ID)
	if isSkipping(got) || !got.ExecutionBasis.Equal(utc(2024, time.January, 1, 8, 0)) {
		t.Fatalf("after auto unskip: skipping=%t basis=%v", isSkipping(got), got.ExecutionBasis)
	}
	if n := len(logs.byKind(reminder.OccurrenceSkipped)); n != 1 {
		t.Fatalf("auto unskip removed the skip log (%d left)", n)
	}

	clock.Set(utc(2024, time.January, 3, 8, 0).Add(10 * time.Second))
	if rep := o.Reconcile(ctx); rep.Fired != 1 {
		t.Fatalf("reconcile on Wednesday = %+v, want one alarm", rep)
	}
	select {
	case a := <-sink.ch:
		if a.ReminderID != r.ID || !a.Scheduled.Equal(utc(2024, time.January, 3, 8, 0)) || a.Missed {
			t.Fatalf("alarm = %+v", a)
		}
	default:
		t.Fatal("no alarm delivered")
	}
	got, _ = o.Get(r.ID)
	if !got.PresentationHandled {
		t.Fatal("fired reminder not marked presented")
	}
	if rep := o.Reconcile(ctx); rep.Fired != 0 {
		t.Fatal("presented reminder fired twice")
	}
}

func TestClearSkipRemovesOnlyUnmodifiedLog(t *testing.T) {
	t.Parallel()

	for _, modified := range []bool{false, true} {
		ctx := context.Background()
		clock := &fakeClock{t: utc(2024, time.January, 1, 7, 0)}
		logs := newMemLogs()
		o := New(WithClock(clock.Now), WithLogSink(logs))
		m, _ := reminder.NewMonthly(9, 0, 15)
		r := mustAdd(t, o, m, clock.Now())

		if _, err := o.RequestSkip(ctx, r.ID); err != nil {
			t.Fatalf("RequestSkip: %v", err)
		}
		if modified {
			logs.markAllModified()
		}
		removed, err := o.ClearSkip(ctx, r.ID)
		if err != nil {
			t.Fatalf("ClearSkip: %v", err)
		}
		left := len(logs.byKind(reminder.OccurrenceSkipped))
		if modified && (removed != "" || left != 1) {
			t.Fatalf("modified log: removed=%q left=%d, want kept", removed, left)
		}
		if !modified && (removed == "" || left != 0) {
			t.Fatalf("unmodified log: removed=%q left=%d, want removed", removed, left)
		}
	}
}

type failingLogs struct{ *memLogs }

func (failingLogs) FindSkipLog(context.Context, string, time.Time) (string, bool, error) {
	return "", false, errors.New("log store unavailable")
}

func TestClearSkipLookupFailureLeavesSkipInPlace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{t: utc(2024, time.January, 1, 7, 0)}
	logs := failingLogs{newMemLogs()}
	store := &memStore{}
	o := New(WithClock(clock.Now), WithLogSink(logs), WithPersister(store))
	m, _ := reminder.NewMonthly(9, 0, 15)
	r := mustAdd(t, o, m, clock.Now())

	if _, err := o.RequestSkip(ctx, r.ID); err != nil {
		t.Fatalf("RequestSkip: %v", err)
	}
	saves := store.saveCount()
	if _, err := o.ClearSkip(ctx, r.ID); err == nil {
		t.Fatal("ClearSkip succeeded although the skip log lookup failed")
	}
	got, _ := o.Get(r.ID)
	if s, _ := got.SkipState(); !s.Skipping() {
		t.Fatal("skip cleared despite lookup failure")
	}
	if store.saveCount() != saves {
		t.Fatalf("saves = %d, want %d", store.saveCount(), saves)
	}
	if n := len(logs.byKind(reminder.OccurrenceSkipped)); n != 1 {
		t.Fatalf("skip logs = %d, want 1", n)
	}
}

func TestUnsupportedOperationLeavesReminderUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{t: utc(2024, time.January, 1, 0, 0)}
	store := &memStore{}
	o := New(WithClock(clock.Now), WithPersister(store))
	c, _ := reminder.NewCountdown(time.Hour)
	r := mustAdd(t, o, c, clock.Now())
	saves := store.saveCount()

	if _, err := o.RequestSkip(ctx, r.ID); !errors.Is(err, reminder.ErrInvalidOperation) {
		t.Fatalf("RequestSkip err = %v, want ErrInvalidOperation", err)
	}
	if _, err := o.ClearSkip(ctx, r.ID); !errors.Is(err, reminder.ErrInvalidOperation) {
		t.Fatalf("ClearSkip err = %v, want ErrInvalidOperation", err)
	}
	if _, err := o.Snooze(ctx, r.ID, 0); !errors.Is(err, reminder.ErrConfiguration) {
		t.Fatalf("Snooze(0) err = %v, want ErrConfiguration", err)
	}
	if store.saveCount() != saves {
		t.Fatal("rejected operation was persisted")
	}
	if _, err := o.RequestSkip(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RequestSkip(missing) err = %v, want ErrNotFound", err)
	}
}

func TestPauseResumePreservesCountdownRemaining(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	t0 := utc(2024, time.March, 1, 12, 0)
	clock := &fakeClock{t: t0}
	store := &memStore{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	o := New(WithClock(clock.Now), WithPersister(store), WithBus(bus))

	c, _ := reminder.NewCountdown(3600 * time.Second)
	cr := mustAdd(t, o, c, t0)
	w, _ := reminder.NewWeekly(8, 0, 1)
	wr := mustAdd(t, o, w, t0)
	weeklyNext, _ := o.NextFireInstant(wr.ID)

	clock.Advance(1000 * time.Second)
	if err := o.PauseAll(ctx, clock.Now()); err != nil {
		t.Fatalf("PauseAll: %v", err)
	}
	if paused, at := o.Paused(); !paused || !at.Equal(clock.Now()) {
		t.Fatalf("Paused = %t, %v", paused, at)
	}
	// A second pause must not count the same span twice.
	clock.Advance(200 * time.Second)
	_ = o.PauseAll(ctx, clock.Now())

	clock.Advance(300 * time.Second)
	resumedAt := clock.Now()
	if err := o.ResumeAll(ctx, resumedAt); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}
	next, err := o.NextFireInstant(cr.ID)
	if want := resumedAt.Add(2600 * time.Second); err != nil || !next.Equal(want) {
		t.Fatalf("countdown next = %v, %v; want %v", next, err, want)
	}
	if got, _ := o.NextFireInstant(wr.ID); !got.Equal(weeklyNext) {
		t.Fatalf("weekly next moved from %v to %v", weeklyNext, got)
	}
	if store.paused {
		t.Fatal("persisted pause flag still set after resume")
	}

	var sawPaused, sawResumed bool
	for len(events) > 0 {
		switch (<-events).Type {
		case eventbus.RemindersPaused:
			sawPaused = true
		case eventbus.RemindersResumed:
			sawResumed = true
		}
	}
	if !sawPaused || !sawResumed {
		t.Fatalf("events paused=%t resumed=%t", sawPaused, sawResumed)
	}
}

func TestResetAfterFiring(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	t0 := utc(2024, time.March, 1, 12, 0)
	clock := &fakeClock{t: t0}
	logs, store := newMemLogs(), &memStore{}
	o := New(WithClock(clock.Now), WithLogSink(logs), WithPersister(store))

	once, _ := reminder.NewOneTime(t0.Add(time.Hour))
	or := mustAdd(t, o, once, t0)
	c, _ := reminder.NewCountdown(time.Hour)
	cr := mustAdd(t, o, c, t0)
	if _, err := o.Snooze(ctx, cr.ID, 5*time.Minute); err != nil {
		t.Fatalf("Snooze: %v", err)
	}

	clock.Advance(2 * time.Hour)
	loggedAt := clock.Now()
	res, err := o.ResetAfterFiring(ctx, or.ID, &loggedAt)
	if err != nil || !res.Deleted || res.LogID == "" {
		t.Fatalf("one-time reset = %+v, %v; want deleted with log", res, err)
	}
	if _, err := o.Get(or.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("one-time reminder still present: %v", err)
	}
	if len(store.deletes) != 1 || store.deletes[0] != or.ID {
		t.Fatalf("store deletes = %v", store.deletes)
	}

	res, err = o.ResetAfterFiring(ctx, cr.ID, nil)
	if err != nil || res.Deleted || res.LogID != "" {
		t.Fatalf("countdown reset = %+v, %v", res, err)
	}
	if want := loggedAt.Add(time.Hour); !res.Next.Equal(want) {
		t.Fatalf("next after reset = %v, want %v", res.Next, want)
	}
	got, _ := o.Get(cr.ID)
	if got.Snooze.Enabled || got.PresentationHandled || !got.ExecutionBasis.Equal(loggedAt) {
		t.Fatalf("countdown after reset = %+v", got)
	}
	if n := len(logs.byKind(reminder.OccurrenceFired)); n != 1 {
		t.Fatalf("fired logs = %d, want 1", n)
	}
}

func TestDueAndDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	t0 := utc(2024, time.March, 1, 12, 0)
	clock := &fakeClock{t: t0}
	o := New(WithClock(clock.Now))

	short, _ := reminder.NewCountdown(time.Minute)
	a := mustAdd(t, o, short, t0)
	other, _ := reminder.NewCountdown(time.Minute)
	b := mustAdd(t, o, other, t0)
	long, _ := reminder.NewCountdown(time.Hour)
	mustAdd(t, o, long, t0)

	if _, err := o.SetEnabled(ctx, b.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	due := o.Due(t0.Add(2 * time.Minute))
	if len(due) != 1 || due[0].ID != a.ID {
		t.Fatalf("Due = %+v, want only %s", due, a.ID)
	}

	clock.Advance(10 * time.Minute)
	got, err := o.SetEnabled(ctx, b.ID, true)
	if err != nil || !got.ExecutionBasis.Equal(clock.Now()) {
		t.Fatalf("re-enabled reminder basis = %v, %v; want %v", got.ExecutionBasis, err, clock.Now())
	}
}

func TestDueIsEmptyWhilePaused(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	t0 := utc(2024, time.March, 1, 12, 0)
	clock := &fakeClock{t: t0}
	o := New(WithClock(clock.Now))

	c, _ := reminder.NewCountdown(time.Hour)
	r := mustAdd(t, o, c, t0)

	clock.Advance(30 * time.Minute)
	if err := o.PauseAll(ctx, clock.Now()); err != nil {
		t.Fatalf("PauseAll: %v", err)
	}
	clock.Advance(2 * time.Hour)
	if due := o.Due(clock.Now()); len(due) != 0 {
		t.Fatalf("Due while paused = %+v, want none", due)
	}

	if err := o.ResumeAll(ctx, clock.Now()); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}
	clock.Advance(30 * time.Minute)
	due := o.Due(clock.Now())
	if len(due) != 1 || due[0].ID != r.ID {
		t.Fatalf("Due after resume = %+v, want %s", due, r.ID)
	}
}

func TestMissedCalendarAlarmReportsLatestOccurrence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{t: utc(2024, time.January, 1, 0, 0)}
	sink := newChanSink()
	o := New(WithClock(clock.Now), WithAlarmSink(sink), WithAutoReset(true))
	w, _ := reminder.NewWeekly(8, 0, 2, 4, 6)
	r := mustAdd(t, o, w, clock.Now())

	// Down for over a week.
	clock.Set(utc(2024, time.January, 10, 9, 0))
	if rep := o.Reconcile(ctx); rep.Fired != 1 {
		t.Fatalf("Reconcile = %+v, want one catch-up alarm", rep)
	}
	a := <-sink.ch
	if !a.Missed || !a.Scheduled.Equal(utc(2024, time.January, 10, 8, 0)) {
		t.Fatalf("alarm = %+v, want missed Wednesday Jan 10 08:00", a)
	}
	next, _ := o.NextFireInstant(r.ID)
	if want := utc(2024, time.January, 12, 8, 0); !next.Equal(want) {
		t.Fatalf("next after auto reset = %v, want %v", next, want)
	}
}

func TestRestoreRejectsInvalidAndKeepsValid(t *testing.T) {
	t.Parallel()
	o := New()
	c, _ := reminder.NewCountdown(time.Hour)
	good, _ := reminder.New(c, utc(2024, time.January, 1, 0, 0))
	bad := &reminder.Reminder{ID: "bad", ExecutionBasis: utc(2024, time.January, 1, 0, 0), Mode: &reminder.Weekly{}}
	err := o.Restore([]*reminder.Reminder{good, bad, good}, true, utc(2024, time.January, 1, 1, 0))
	if !errors.Is(err, reminder.ErrConfiguration) || !errors.Is(err, ErrExists) {
		t.Fatalf("Restore err = %v, want configuration and duplicate errors", err)
	}
	if n := len(o.List()); n != 1 {
		t.Fatalf("restored %d reminders, want 1", n)
	}
	if paused, _ := o.Paused(); !paused {
		t.Fatal("pause flag not restored")
	}
}
