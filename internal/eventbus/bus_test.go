package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	fast, unsubFast := b.Subscribe(4)
	defer unsubFast()
	slow, unsubSlow := b.Subscribe(1)
	defer unsubSlow()

	b.Publish(Event{Type: ReminderFired, Data: ReminderData{ID: "a"}})
	b.Publish(Event{Type: ReminderReset, Data: ReminderData{ID: "a"}})

	if got := len(fast); got != 2 {
		t.Fatalf("fast subscriber got %d events, want 2", got)
	}
	if got := len(slow); got != 1 {
		t.Fatalf("slow subscriber got %d events, want 1", got)
	}
	if got := b.Dropped(); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
	e := <-fast
	if e.Type != ReminderFired || e.Time.IsZero() {
		t.Fatalf("first event = %+v", e)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	b.Publish(Event{Type: RemindersPaused})
}
