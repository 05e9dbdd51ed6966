package app

import (
	"time"

	"careclock/internal/dispatch"
	"careclock/internal/orchestrator"
	"careclock/internal/reconcile"
	"careclock/internal/runtime/supervisor"
)

// Status is the daemon view served at /status.
type Status struct {
	Now        time.Time             `json:"now"`
	Timezone   string                `json:"timezone"`
	Scheduler  orchestrator.Snapshot `json:"scheduler"`
	Dispatch   dispatch.Snapshot     `json:"dispatch"`
	Reconcile  ReconcileStatus       `json:"reconcile"`
	Goroutines []supervisor.Stats    `json:"goroutines,omitempty"`
}

type ReconcileStatus struct {
	Runs    int           `json:"runs"`
	Last    reconcile.Run `json:"last"`
	NextRun time.Time     `json:"next_run"`
}

// Status collects a point-in-time view of every service.
func (a *App) Status() Status {
	runs, last := a.rec.Stats()
	st := Status{
		Now:       a.orch.Now(),
		Timezone:  a.Location().String(),
		Scheduler: a.orch.Snapshot(),
		Dispatch:  a.disp.Snapshot(),
		Reconcile: ReconcileStatus{Runs: runs, Last: last, NextRun: a.rec.NextRun()},
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Snapshot()
	}
	return st
}
