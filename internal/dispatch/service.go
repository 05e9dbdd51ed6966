package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"careclock/internal/eventbus"
	"careclock/internal/orchestrator"
	"careclock/internal/runtime/supervisor"
	"careclock/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

// Service delivers alarms to a Notifier from a bounded queue drained by a
// worker pool. It implements orchestrator.AlarmSink.
type Service struct {
	mu       sync.Mutex
	cfg      Config
	log      logx.Logger
	bus      eventbus.Bus
	notifier Notifier
	limiter  *rate.Limiter

	q      chan queued
	stopCh chan struct{}
	sup    *supervisor.Supervisor

	busy inflight

	hmu     sync.Mutex
	history []HistoryItem

	delivered       atomic.Uint64
	failed          atomic.Uint64
	dropped         atomic.Uint64
	lastDropWarnAt  atomic.Int64
	inFlightWorkers atomic.Int32
}

type queued struct {
	alarm      orchestrator.Alarm
	enqueuedAt time.Time
}

var _ orchestrator.AlarmSink = (*Service)(nil)

func New(cfg Config, n Notifier, log logx.Logger, bus eventbus.Bus) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:      cfg,
		log:      log.With(logx.Component("dispatch")),
		bus:      bus,
		notifier: n,
		limiter:  newLimiter(cfg),
		busy:     inflight{ids: map[string]struct{}{}},
	}
	return s
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.RatePerSec <= 0 {
		return rate.NewLimiter(rate.Inf, cfg.Burst)
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
}

// Start launches the workers. It is a no-op when already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	cfg := s.cfg
	s.q = make(chan queued, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))

	queue, stopCh := s.q, s.stopCh
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		s.sup.GoRestart(fmt.Sprintf("dispatch.worker.%d", idx), func(c context.Context) error {
			return s.worker(c, stopCh, queue, idx)
		}, 250*time.Millisecond, 10*time.Second)
	}
	s.log.Info("dispatcher started", logx.Int("workers", cfg.Workers), logx.Int("queue", cfg.QueueSize))
}

// Stop stops the workers. Alarms still queued are dropped.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	sup := s.sup
	s.stopCh, s.q, s.sup = nil, nil, nil
	s.mu.Unlock()

	if err := sup.Stop(ctx); err != nil {
		s.log.Warn("dispatcher stop", logx.Err(err))
		return
	}
	s.log.Info("dispatcher stopped")
}

// Apply updates throttling and retry settings. Worker count and queue size
// take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	if cfg.RatePerSec <= 0 {
		s.limiter.SetLimit(rate.Inf)
	} else {
		s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	}
	s.limiter.SetBurst(cfg.Burst)
}

// Fire enqueues an alarm without blocking.
func (s *Service) Fire(_ context.Context, a orchestrator.Alarm) error {
	s.mu.Lock()
	q, stopCh := s.q, s.stopCh
	s.mu.Unlock()
	if q == nil || stopCh == nil {
		return ErrStopped
	}
	if !s.busy.tryAcquire(a.ReminderID) {
		s.drop(a, "in_flight")
		return ErrInFlight
	}
	select {
	case q <- queued{alarm: a, enqueuedAt: time.Now()}:
		return nil
	default:
		s.busy.release(a.ReminderID)
		s.drop(a, "queue_full")
		return ErrQueueFull
	}
}

func (s *Service) drop(a orchestrator.Alarm, reason string) {
	s.dropped.Add(1)
	now := time.Now()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.AlarmDropped, Time: now, Data: AlarmEvent{ReminderID: a.ReminderID, Scheduled: a.Scheduled, Error: reason}})
	}
	prev := s.lastDropWarnAt.Load()
	if prev != 0 && now.UnixNano()-prev < int64(warnThrottleEvery) {
		return
	}
	if s.lastDropWarnAt.CompareAndSwap(prev, now.UnixNano()) {
		s.log.Warn("alarm dropped", logx.Reminder(a.ReminderID), logx.String("reason", reason), logx.Uint64("dropped", s.dropped.Load()))
	}
}

func (s *Service) record(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg, q, running := s.cfg, s.q, s.stopCh != nil
	s.mu.Unlock()

	s.hmu.Lock()
	h := make([]HistoryItem, len(s.history))
	copy(h, s.history)
	s.hmu.Unlock()

	snap := Snapshot{
		Running:   running,
		Workers:   cfg.Workers,
		InFlight:  int(s.inFlightWorkers.Load()),
		Delivered: s.delivered.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
		History:   h,
	}
	if q != nil {
		snap.QueueLen, snap.QueueCap = len(q), cap(q)
	}
	return snap
}
