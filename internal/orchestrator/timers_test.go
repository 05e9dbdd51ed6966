package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"careclock/internal/reminder"
)

func waitAlarm(t *testing.T, ch <-chan Alarm, within time.Duration) Alarm {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(within):
		t.Fatalf("no alarm within %v", within)
		return Alarm{}
	}
}

func TestTimerFiresAndAutoResets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := newChanSink()
	o := New(WithAlarmSink(sink), WithAutoReset(true))
	o.Start(ctx)
	defer o.Stop()

	c, _ := reminder.NewCountdown(40 * time.Millisecond)
	r := mustAdd(t, o, c, time.Now())

	a := waitAlarm(t, sink.ch, 2*time.Second)
	if a.ReminderID != r.ID || a.Kind != reminder.KindCountdown {
		t.Fatalf("alarm = %+v", a)
	}
	// Auto reset starts another cycle, so a second alarm follows.
	waitAlarm(t, sink.ch, 2*time.Second)
}

func TestPausedRemindersDoNotFire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := newChanSink()
	o := New(WithAlarmSink(sink))
	o.Start(ctx)
	defer o.Stop()

	if err := o.PauseAll(ctx, time.Now()); err != nil {
		t.Fatalf("PauseAll: %v", err)
	}
	c, _ := reminder.NewCountdown(20 * time.Millisecond)
	r := mustAdd(t, o, c, time.Now())
	if o.armed(r.ID) {
		t.Fatal("reminder armed while paused")
	}

	select {
	case a := <-sink.ch:
		t.Fatalf("alarm while paused: %+v", a)
	case <-time.After(100 * time.Millisecond):
	}

	if err := o.ResumeAll(ctx, time.Now()); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}
	waitAlarm(t, sink.ch, 2*time.Second)
}

func TestDeleteAndDisableCancelOnlyThatTimer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	o := New()
	o.Start(ctx)
	defer o.Stop()

	ids := make([]string, 3)
	for i := range ids {
		c, _ := reminder.NewCountdown(time.Hour)
		ids[i] = mustAdd(t, o, c, time.Now()).ID
	}
	for _, id := range ids {
		if !o.armed(id) {
			t.Fatalf("%s not armed", id)
		}
	}

	if err := o.Delete(ctx, ids[0]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := o.SetEnabled(ctx, ids[1], false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if o.armed(ids[0]) || o.armed(ids[1]) {
		t.Fatal("deleted or disabled reminder still armed")
	}
	if !o.armed(ids[2]) {
		t.Fatal("unrelated reminder lost its timer")
	}

	snap := o.Snapshot()
	if !snap.Started || len(snap.Reminders) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestConcurrentMutationsSerializePerReminder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	o := New()
	o.Start(ctx)
	defer o.Stop()

	var ids []string
	for i := 0; i < 4; i++ {
		c, _ := reminder.NewCountdown(time.Hour)
		ids = append(ids, mustAdd(t, o, c, time.Now()).ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := o.ResetAfterFiring(ctx, id, nil); err != nil {
					t.Errorf("ResetAfterFiring: %v", err)
					return
				}
				if _, err := o.NextFireInstant(id); err != nil {
					t.Errorf("NextFireInstant: %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_ = o.PauseAll(ctx, time.Now())
			_ = o.ResumeAll(ctx, time.Now())
		}
	}()
	wg.Wait()

	if paused, _ := o.Paused(); paused {
		t.Fatal("left paused")
	}
	for _, r := range o.List() {
		c := r.Mode.(*reminder.Countdown)
		if c.Remaining() <= 0 || c.Remaining() > time.Hour {
			t.Fatalf("%s remaining %v out of range", r.ID, c.Remaining())
		}
		if !o.armed(r.ID) {
			t.Fatalf("%s not armed after resume", r.ID)
		}
	}
}

func TestSnoozeWhileSkippingFiresBeforeSkippedOccurrence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := newChanSink()
	o := New(WithAlarmSink(sink))
	o.Start(ctx)
	defer o.Stop()

	now := time.Now().UTC()
	at := now.Add(2 * time.Hour)
	w, _ := reminder.NewWeekly(at.Hour(), at.Minute(), 1, 2, 3, 4, 5, 6, 7)
	r := mustAdd(t, o, w, now)

	if _, err := o.RequestSkip(ctx, r.ID); err != nil {
		t.Fatalf("RequestSkip: %v", err)
	}
	if _, err := o.Snooze(ctx, r.ID, 50*time.Millisecond); err != nil {
		t.Fatalf("Snooze: %v", err)
	}

	a := waitAlarm(t, sink.ch, time.Second)
	if a.ReminderID != r.ID || a.Scheduled.After(now.Add(time.Minute)) {
		t.Fatalf("alarm = %+v, want snooze end for %s", a, r.ID)
	}
	got, _ := o.Get(r.ID)
	if s, _ := got.SkipState(); !s.Skipping() {
		t.Fatal("snooze alarm cleared the pending skip")
	}
}
