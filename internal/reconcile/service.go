// Package reconcile runs the periodic catch-up sweep over all reminders.
//
// Timers cover the normal path. The sweep exists for what timers miss:
// alarms that came due while the process was suspended, and auto-unskips
// whose instant passed without a timer firing.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"careclock/internal/orchestrator"
	"careclock/pkg/logx"
)

type Config struct {
	Enabled  bool
	Schedule string
	// Timezone only matters for wall-clock cron specs. Empty means Local.
	Timezone string
}

// Reconciler is satisfied by *orchestrator.Orchestrator.
type Reconciler interface {
	Reconcile(ctx context.Context) orchestrator.ReconcileReport
}

// Run is the outcome of one sweep.
type Run struct {
	At     time.Time
	Took   time.Duration
	Report orchestrator.ReconcileReport
}

type Service struct {
	mu     sync.Mutex
	cfg    Config
	log    logx.Logger
	target Reconciler
	parser cron.Parser

	c       *cron.Cron
	entry   cron.EntryID
	baseCtx context.Context

	runs int
	last Run
}

func New(cfg Config, target Reconciler, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.Component("reconcile")),
		target: target,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate checks that cfg describes a schedule the service can run.
func Validate(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	if _, err := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(spec.CronSpec()); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone %q: %w", tz, err)
		}
	}
	return nil
}

// Start registers the sweep and starts cron. It is a no-op when disabled
// or already running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.baseCtx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	cfg := s.cfg
	if !cfg.Enabled {
		s.log.Debug("sweep disabled")
		return nil
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	loc := loadLocation(cfg.Timezone)
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := c.AddFunc(spec.CronSpec(), s.sweep)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}
	s.c, s.entry = c, id
	c.Start()
	s.log.Info("sweep scheduled", logx.String("spec", spec.CronSpec()), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Debug("sweep stopped")
}

// Apply swaps the schedule. A running service restarts cron.
func (s *Service) Apply(cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == cfg {
		return nil
	}
	s.cfg = cfg
	if s.c == nil {
		return nil
	}
	<-s.c.Stop().Done()
	s.c = nil
	return s.startLocked()
}

// RunNow performs a sweep immediately, independent of the schedule.
func (s *Service) RunNow(ctx context.Context) orchestrator.ReconcileReport {
	return s.run(ctx)
}

func (s *Service) sweep() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}
	s.run(ctx)
}

func (s *Service) run(ctx context.Context) orchestrator.ReconcileReport {
	start := time.Now()
	rep := s.target.Reconcile(ctx)
	took := time.Since(start)

	s.mu.Lock()
	s.runs++
	s.last = Run{At: start, Took: took, Report: rep}
	s.mu.Unlock()

	if rep.Unskipped > 0 || rep.Fired > 0 {
		s.log.Info("sweep caught up", logx.Int("checked", rep.Checked), logx.Int("unskipped", rep.Unskipped), logx.Int("fired", rep.Fired), logx.Duration("took", took))
	} else {
		s.log.Trace("sweep", logx.Int("checked", rep.Checked), logx.Duration("took", took))
	}
	return rep
}

// Stats reports how many sweeps ran and the latest one.
func (s *Service) Stats() (runs int, last Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.last
}

// NextRun is the next scheduled sweep, zero when not running.
func (s *Service) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entry).Next
}

func loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
