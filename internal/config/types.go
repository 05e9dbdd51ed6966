package config

// Config is the daemon configuration file. JSON and YAML are both accepted;
// unknown fields are rejected.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Storage   StorageConfig   `json:"storage"`
	Debug     DebugConfig     `json:"debug"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls reminder timing.
//
// Timezone is the zone used to read and print wall-clock times. It does not
// affect rule evaluation, which always happens in UTC. Reconcile is the
// catch-up sweep schedule: a cron expression, "@every 1m", a Go duration,
// or an HH:MM interval.
type SchedulerConfig struct {
	Enabled   bool   `json:"enabled"`
	Timezone  string `json:"timezone,omitempty"`
	Reconcile string `json:"reconcile,omitempty"`
	// AutoReset starts the next cycle as soon as an alarm is handed off,
	// instead of waiting for an explicit done.
	AutoReset bool `json:"auto_reset,omitempty"`
}

// DispatchConfig controls alarm delivery.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
//   - rate_per_sec: 0 (unlimited)
//   - timeout: "10s"
//   - retry_max: 3
//   - retry_base: "500ms"
//   - retry_max_delay: "15s"
//   - history_size: 100
type DispatchConfig struct {
	Workers       int     `json:"workers,omitempty"`
	QueueSize     int     `json:"queue_size,omitempty"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	Burst         int     `json:"burst,omitempty"`
	Timeout       string  `json:"timeout,omitempty"`
	RetryMax      int     `json:"retry_max,omitempty"`
	RetryBase     string  `json:"retry_base,omitempty"`
	RetryMaxDelay string  `json:"retry_max_delay,omitempty"`
	HistorySize   int     `json:"history_size,omitempty"`
}

// StorageConfig selects the persistence backend. Driver is "file",
// "sqlite" or "none".
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// DebugConfig enables a local HTTP server with /status, /healthz and
// /debug/pprof. Binding beyond loopback needs a token or allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// Defaults is the tree every file is layered over.
func Defaults() map[string]any {
	return map[string]any{
		"logging.level":            "info",
		"logging.console":          true,
		"scheduler.enabled":        true,
		"scheduler.reconcile":      "@every 1m",
		"dispatch.workers":         2,
		"dispatch.queue_size":      64,
		"dispatch.timeout":         "10s",
		"dispatch.retry_max":       3,
		"dispatch.retry_base":      "500ms",
		"dispatch.retry_max_delay": "15s",
		"dispatch.history_size":    100,
		"storage.driver":           "file",
		"storage.path":             "data/careclock.json",
		"debug.addr":               "127.0.0.1:6061",
	}
}
