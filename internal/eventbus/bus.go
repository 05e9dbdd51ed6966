package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a lightweight in-memory signal about a reminder lifecycle change.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers use buffered channels; a full subscriber misses events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Event types published by the orchestrator.
const (
	ReminderAdded     = "reminder.added"
	ReminderUpdated   = "reminder.updated"
	ReminderDeleted   = "reminder.deleted"
	ReminderFired     = "reminder.fired"
	ReminderReset     = "reminder.reset"
	ReminderSkipped   = "reminder.skipped"
	ReminderUnskipped = "reminder.unskipped"
	ReminderSnoozed   = "reminder.snoozed"
	RemindersPaused   = "reminders.paused"
	RemindersResumed  = "reminders.resumed"

	AlarmDelivered = "alarm.delivered"
	AlarmFailed    = "alarm.failed"
	AlarmDropped   = "alarm.dropped"
)

// ReminderData is the payload of reminder.* events.
type ReminderData struct {
	ID   string
	Kind string
	// Next is the next fire instant after the change, zero when none.
	Next time.Time
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() *MemBus {
	return &MemBus{subs: map[uint64]chan Event{}}
}

type MemBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close ch between the snapshot and the send.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
				b.dropped.Add(1)
			}
		}()
	}
}

func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Dropped counts deliveries lost to full subscriber buffers.
func (b *MemBus) Dropped() uint64 { return b.dropped.Load() }
