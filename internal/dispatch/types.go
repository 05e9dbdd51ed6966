package dispatch

import (
	"context"
	"sync"
	"time"

	"careclock/internal/orchestrator"
)

type Config struct {
	Workers   int
	QueueSize int

	// RatePerSec throttles notifier calls across all workers. 0 disables it.
	RatePerSec float64
	Burst      int

	// Timeout bounds a single Notify call.
	Timeout time.Duration

	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64

	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 15 * time.Second
	}
	if c.RetryJitter <= 0 {
		c.RetryJitter = 0.2
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	return c
}

// Notifier delivers an alarm to whoever should hear about it.
type Notifier interface {
	Notify(ctx context.Context, a orchestrator.Alarm) error
}

type NotifierFunc func(ctx context.Context, a orchestrator.Alarm) error

func (f NotifierFunc) Notify(ctx context.Context, a orchestrator.Alarm) error { return f(ctx, a) }

// inflight tracks reminders with an alarm queued or being delivered.
type inflight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func (f *inflight) tryAcquire(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.ids[id]; busy {
		return false
	}
	f.ids[id] = struct{}{}
	return true
}

func (f *inflight) release(id string) {
	f.mu.Lock()
	delete(f.ids, id)
	f.mu.Unlock()
}

type HistoryItem struct {
	ReminderID string
	Scheduled  time.Time
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Attempts   int
	Error      string
}

// AlarmEvent is the payload of alarm.* bus events.
type AlarmEvent struct {
	ReminderID string        `json:"reminder_id"`
	Scheduled  time.Time     `json:"scheduled"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

type Snapshot struct {
	Running   bool
	Workers   int
	QueueLen  int
	QueueCap  int
	InFlight  int
	Delivered uint64
	Failed    uint64
	Dropped   uint64
	History   []HistoryItem
}
