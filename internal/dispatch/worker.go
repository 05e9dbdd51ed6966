package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"careclock/internal/eventbus"
	"careclock/internal/orchestrator"
	"careclock/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queued, idx int) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ (int64(idx) << 32)))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case qt := <-queue:
			s.inFlightWorkers.Add(1)
			s.deliver(ctx, stopCh, qt, rng)
			s.inFlightWorkers.Add(-1)
			s.busy.release(qt.alarm.ReminderID)
		}
	}
}

func (s *Service) deliver(ctx context.Context, stopCh <-chan struct{}, qt queued, rng *rand.Rand) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	a := qt.alarm
	start := time.Now()
	log := s.log.With(logx.Reminder(a.ReminderID))

	var err error
	attempts := 0
attemptLoop:
	for attempt := 1; attempt <= 1+cfg.RetryMax; attempt++ {
		attempts = attempt
		if err = s.limiter.Wait(ctx); err != nil {
			break
		}
		err = s.notifyOnce(ctx, cfg.Timeout, a)
		if err == nil || IsNoRetry(err) || attempt > cfg.RetryMax {
			break
		}

		delay := backoffDelay(cfg, attempt, err, rng)
		log.Debug("alarm retry scheduled", logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			err = ctx.Err()
			break attemptLoop
		case <-stopCh:
			tmr.Stop()
			err = ErrStopped
			break attemptLoop
		case <-tmr.C:
		}
	}

	dur := time.Since(start)
	item := HistoryItem{
		ReminderID: a.ReminderID,
		Scheduled:  a.Scheduled,
		Started:    start,
		QueueDelay: start.Sub(qt.enqueuedAt),
		Duration:   dur,
		Attempts:   attempts,
	}
	ev := AlarmEvent{ReminderID: a.ReminderID, Scheduled: a.Scheduled, Attempts: attempts, Duration: dur}
	if err != nil {
		var nr noRetryError
		if errors.As(err, &nr) {
			err = nr.err
		}
		item.Error = err.Error()
		ev.Error = item.Error
		s.failed.Add(1)
		log.Warn("alarm delivery failed", logx.Err(err), logx.Int("attempts", attempts), logx.Duration("dur", dur))
		s.publish(eventbus.AlarmFailed, ev)
	} else {
		s.delivered.Add(1)
		log.Debug("alarm delivered", logx.Int("attempts", attempts), logx.Duration("dur", dur))
		s.publish(eventbus.AlarmDelivered, ev)
	}
	s.record(item)
}

// notifyOnce calls the notifier with a timeout and turns a panic into an
// error so one bad notifier cannot kill the worker.
func (s *Service) notifyOnce(ctx context.Context, timeout time.Duration, a orchestrator.Alarm) (err error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("notifier panicked", logx.Reminder(a.ReminderID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Notify(runCtx, a)
}

func (s *Service) publish(typ string, ev AlarmEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
	}
}

// backoffDelay doubles RetryBase per attempt up to RetryMaxDelay with
// symmetric jitter. A RetryAfter hint replaces the exponential step.
func backoffDelay(cfg Config, attempt int, err error, rng *rand.Rand) time.Duration {
	d := cfg.RetryBase
	var ra retryAfterError
	if errors.As(err, &ra) {
		d = ra.after
	} else {
		for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
			d *= 2
		}
	}
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if cfg.RetryJitter > 0 && rng != nil && d > 0 {
		d = time.Duration(float64(d) * (1 + (rng.Float64()*2-1)*cfg.RetryJitter))
	}
	if d < 0 {
		d = 0
	}
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
