package app

import (
	"context"
	"strings"

	"careclock/internal/config"
	"careclock/pkg/logx"
)

func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.Config()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts and apply only the newest.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
}

// applyConfig hot-applies everything that can change at runtime. Storage,
// worker counts and auto-reset wait for a restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, fields := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	a.logs.Apply(mapLogConfig(next))

	if dc, err := mapDispatchConfig(next); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(dc)
	}

	loc, err := next.Location()
	if err != nil {
		a.log.Warn("invalid timezone; keeping previous", logx.Err(err))
		loc = a.Location()
	}

	if err := a.rec.Apply(mapReconcileConfig(next)); err != nil {
		a.log.Warn("invalid reconcile schedule; keeping previous", logx.Err(err))
	} else if !prev.Scheduler.Enabled && next.Scheduler.Enabled {
		// A freshly enabled service needs Start; Apply only swaps a running one.
		if err := a.rec.Start(ctx); err != nil {
			a.log.Warn("reconcile start failed", logx.Err(err))
		}
	}

	a.dbg.Reconfigure(ctx, mapDebugConfig(next))

	switch {
	case prev.Scheduler.Enabled && !next.Scheduler.Enabled:
		a.log.Info("scheduler disabled via config")
		a.orch.Stop()
	case !prev.Scheduler.Enabled && next.Scheduler.Enabled:
		a.log.Info("scheduler enabled via config")
		a.orch.Start(ctx)
	}

	if config.RequiresRestart(prev, next) {
		a.log.Warn("some config changes need a restart to take effect")
	}
	a.mu.Lock()
	a.cfg, a.loc = next, loc
	a.mu.Unlock()
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
}
