package app

import (
	"strings"
	"time"

	"careclock/internal/config"
	"careclock/internal/dispatch"
	"careclock/internal/observability/debughttp"
	"careclock/internal/reconcile"
	"careclock/internal/storage"
	"careclock/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	d := cfg.Dispatch
	out := dispatch.Config{
		Workers:     d.Workers,
		QueueSize:   d.QueueSize,
		RatePerSec:  d.RatePerSec,
		Burst:       d.Burst,
		RetryMax:    d.RetryMax,
		HistorySize: d.HistorySize,
	}
	for _, f := range []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"dispatch.timeout", d.Timeout, &out.Timeout},
		{"dispatch.retry_base", d.RetryBase, &out.RetryBase},
		{"dispatch.retry_max_delay", d.RetryMaxDelay, &out.RetryMaxDelay},
	} {
		v, err := config.ParseDurationField(f.path, f.raw)
		if err != nil {
			return dispatch.Config{}, err
		}
		*f.dst = v
	}
	return out, nil
}

func mapReconcileConfig(cfg *config.Config) reconcile.Config {
	return reconcile.Config{
		Enabled:  cfg.Scheduler.Enabled && strings.TrimSpace(cfg.Scheduler.Reconcile) != "",
		Schedule: cfg.Scheduler.Reconcile,
		Timezone: cfg.Scheduler.Timezone,
	}
}

func mapDebugConfig(cfg *config.Config) debughttp.Config {
	return debughttp.Config{
		Enabled:       cfg.Debug.Enabled,
		Addr:          strings.TrimSpace(cfg.Debug.Addr),
		Token:         strings.TrimSpace(cfg.Debug.Token),
		AllowInsecure: cfg.Debug.AllowInsecure,
	}
}

// validate checks what config.Validate cannot: that every section maps
// onto a runnable service config.
func validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := mapDispatchConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return reconcile.Validate(mapReconcileConfig(cfg))
}
