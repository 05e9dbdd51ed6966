// Package app wires configuration, storage, the orchestrator, alarm
// dispatch and the reconcile sweep into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"careclock/internal/config"
	"careclock/internal/dispatch"
	"careclock/internal/eventbus"
	"careclock/internal/observability/debughttp"
	"careclock/internal/orchestrator"
	"careclock/internal/reconcile"
	"careclock/internal/runtime/supervisor"
	"careclock/internal/storage"
	"careclock/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	mu  sync.RWMutex
	cfg *config.Config
	loc *time.Location

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus

	store *storage.Store
	orch  *orchestrator.Orchestrator
	disp  *dispatch.Service
	rec   *reconcile.Service
	dbg   *debughttp.Service

	sup *supervisor.Supervisor

	restoreOnce sync.Once
	restoreErr  error
}

type Option func(*options)

type options struct {
	notifier dispatch.Notifier
	now      func() time.Time
}

// WithNotifier replaces the default log notifier.
func WithNotifier(n dispatch.Notifier) Option { return func(o *options) { o.notifier = n } }

// WithClock replaces time.Now for the orchestrator.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New loads the config at cfgPath and builds every service. Nothing runs
// until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	bootLog := logx.NewConsole("info")
	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log)
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return validate(c) })

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if store == nil {
		log.Warn("storage disabled; reminders will not survive a restart")
	}

	dc, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifier := o.notifier
	if notifier == nil {
		notifier = dispatch.LogNotifier{Log: log.With(logx.Component("alarm"))}
	}
	disp := dispatch.New(dc, notifier, log, bus)

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithBus(bus),
		orchestrator.WithAlarmSink(disp),
		orchestrator.WithAutoReset(cfg.Scheduler.AutoReset),
	}
	if o.now != nil {
		orchOpts = append(orchOpts, orchestrator.WithClock(o.now))
	}
	if store != nil {
		orchOpts = append(orchOpts, orchestrator.WithPersister(store), orchestrator.WithLogSink(store))
	}
	orch := orchestrator.New(orchOpts...)

	a := &App{
		cfgm:  cfgm,
		cfg:   cfg,
		loc:   loc,
		log:   log.With(logx.Component("app")),
		logs:  logSvc,
		bus:   bus,
		store: store,
		orch:  orch,
		disp:  disp,
		rec:   reconcile.New(mapReconcileConfig(cfg), orch, log),
	}
	a.dbg = debughttp.New(mapDebugConfig(cfg), func() any { return a.Status() }, log)
	return a, nil
}

func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Store is nil when storage is disabled.
func (a *App) Store() *storage.Store { return a.store }

func (a *App) Dispatcher() *dispatch.Service { return a.disp }

func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Location is the zone used to read and print wall-clock times.
func (a *App) Location() *time.Location {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loc
}

func (a *App) Logger() logx.Logger { return a.log }

// Restore loads reminders and the pause flag from storage into the
// orchestrator. It runs at most once; Start calls it implicitly.
func (a *App) Restore(ctx context.Context) error {
	a.restoreOnce.Do(func() {
		if a.store == nil {
			return
		}
		rs, loadErr := a.store.LoadReminders(ctx)
		paused, pausedAt, err := a.store.LoadPaused(ctx)
		if err != nil {
			a.restoreErr = err
			return
		}
		if restoreErr := a.orch.Restore(rs, paused, pausedAt); restoreErr != nil || loadErr != nil {
			// Bad records are reported but do not stop the rest from loading.
			a.log.Warn("some reminders could not be restored", logx.Err(errors.Join(loadErr, restoreErr)))
		}
	})
	return a.restoreErr
}

// Start restores state, starts every service and follows config changes.
func (a *App) Start(ctx context.Context) error {
	if err := a.Restore(ctx); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	cfg := a.Config()
	a.disp.Start(c)
	if cfg.Scheduler.Enabled {
		a.orch.Start(c)
	} else {
		a.log.Warn("scheduler disabled; reminders will not fire")
	}
	if err := a.rec.Start(c); err != nil {
		return err
	}
	if cfg.Scheduler.Enabled {
		// Catch up on anything that came due while the process was down.
		rep := a.rec.RunNow(c)
		a.log.Info("startup sweep", logx.Int("checked", rep.Checked), logx.Int("unskipped", rep.Unskipped), logx.Int("fired", rep.Fired))
	}

	a.dbg.Start(c)

	a.startEventLog()
	a.startConfigReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started", logx.String("tz", a.Location().String()), logx.Int("reminders", len(a.orch.List())))
	return nil
}

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stop shuts services down in reverse start order and closes storage.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	start := time.Now()

	a.dbg.Stop(ctx)
	a.rec.Stop(ctx)
	a.orch.Stop()
	a.disp.Stop(ctx)

	var errs []error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	a.log.Info("app stopped", logx.Duration("took", time.Since(start)))
	return errors.Join(errs...)
}

// Close releases storage and log files without touching running services.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				fields := []logx.Field{logx.String("type", e.Type)}
				if d, ok := e.Data.(eventbus.ReminderData); ok {
					fields = append(fields, logx.Reminder(d.ID))
					if !d.Next.IsZero() {
						fields = append(fields, logx.Time("next", d.Next.In(a.Location())))
					}
				}
				a.log.Debug("event", fields...)
			}
		}
	})
}
