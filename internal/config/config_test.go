package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"careclock/pkg/logx"
)

func TestDecodeDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("careclock.json", nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Logging.Level != "info" || !cfg.Scheduler.Enabled || cfg.Scheduler.Reconcile != "@every 1m" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Dispatch.Workers != 2 || cfg.Dispatch.RetryMax != 3 || cfg.Storage.Driver != "file" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Debug.Enabled || cfg.Debug.Addr != "127.0.0.1:6061" {
		t.Fatalf("debug defaults = %+v", cfg.Debug)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestDecodeYAMLOverridesDefaults(t *testing.T) {
	t.Parallel()

	src := `
logging:
  level: debug
scheduler:
  timezone: Asia/Kathmandu
  auto_reset: true
dispatch:
  workers: 4
  rate_per_sec: 2.5
storage:
  driver: sqlite
  path: /tmp/cc.db
`
	cfg, err := Decode("careclock.yaml", []byte(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging=%+v", cfg.Logging)
	}
	if cfg.Scheduler.Timezone != "Asia/Kathmandu" || !cfg.Scheduler.AutoReset || !cfg.Scheduler.Enabled {
		t.Fatalf("scheduler=%+v", cfg.Scheduler)
	}
	if cfg.Dispatch.Workers != 4 || cfg.Dispatch.RatePerSec != 2.5 || cfg.Dispatch.QueueSize != 64 {
		t.Fatalf("dispatch=%+v", cfg.Dispatch)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "/tmp/cc.db" {
		t.Fatalf("storage=%+v", cfg.Storage)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Kathmandu" {
		t.Fatalf("Location = %v, %v", loc, err)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, path, src string
	}{
		{"unknown field", "c.json", `{"logging":{"colour":true}}`},
		{"unknown section", "c.yaml", "telegram:\n  token: x\n"},
		{"trailing data", "c.json", `{"logging":{}} {}`},
		{"bad yaml", "c.yaml", "logging: [\n"},
	}
	for _, tc := range cases {
		if _, err := Decode(tc.path, []byte(tc.src)); err == nil {
			t.Fatalf("%s: want error", tc.name)
		}
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CARECLOCK_STORAGE__PATH", "/var/lib/careclock/state.db")
	t.Setenv("CARECLOCK_DISPATCH__WORKERS", "7")
	t.Setenv("CARECLOCK_SCHEDULER__AUTO_RESET", "true")

	cfg, err := Decode("c.json", []byte(`{"storage":{"driver":"sqlite","path":"from-file.db"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Storage.Path != "/var/lib/careclock/state.db" {
		t.Fatalf("storage.path=%q, want env value", cfg.Storage.Path)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage.driver=%q, want file value", cfg.Storage.Driver)
	}
	if cfg.Dispatch.Workers != 7 || !cfg.Scheduler.AutoReset {
		t.Fatalf("dispatch.workers=%d auto_reset=%v", cfg.Dispatch.Workers, cfg.Scheduler.AutoReset)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		cfg, err := Decode("c.json", nil)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		return cfg
	}
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"file log without path", func(c *Config) { c.Logging.File.Enabled = true }, "logging.file.path"},
		{"bad tz", func(c *Config) { c.Scheduler.Timezone = "Nowhere/Land" }, "scheduler.timezone"},
		{"bad duration", func(c *Config) { c.Dispatch.RetryBase = "soon" }, "dispatch.retry_base"},
		{"negative rate", func(c *Config) { c.Dispatch.RatePerSec = -1 }, "rate_per_sec"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"missing path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"bad debug addr", func(c *Config) { c.Debug.Enabled, c.Debug.Addr = true, "6061" }, "debug.addr"},
	}
	for _, tc := range cases {
		cfg := base()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err=%v, want mention of %s", tc.name, err, tc.want)
		}
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	a, _ := Decode("c.json", nil)
	b, _ := Decode("c.json", nil)
	if got, _ := SummarizeChange(a, b); len(got) != 0 {
		t.Fatalf("identical configs changed=%v", got)
	}
	b.Dispatch.RatePerSec = 1
	b.Logging.Level = "debug"
	got, fields := SummarizeChange(a, b)
	if strings.Join(got, ",") != "dispatch,logging" || len(fields) == 0 {
		t.Fatalf("changed=%v", got)
	}
	if RequiresRestart(a, b) {
		t.Fatalf("rate and level changes should apply live")
	}
	b.Storage.Driver = "sqlite"
	if !RequiresRestart(a, b) {
		t.Fatalf("storage change should require restart")
	}
}

func TestWatchPublishesChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "careclock.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to register, then rewrite until it notices.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			if cfg.Logging.Level != "debug" {
				t.Fatalf("level=%q, want debug", cfg.Logging.Level)
			}
			if m.Get().Logging.Level != "debug" {
				t.Fatalf("manager not committed")
			}
			return
		case <-tick.C:
			_ = os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o600)
		case <-deadline:
			t.Fatalf("no reload published")
		}
	}
}

func TestWatchRejectsInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "careclock.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"loud"}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m.reload(context.Background()) {
		t.Fatalf("invalid config was published")
	}
	if m.Get().Logging.Level != "info" {
		t.Fatalf("committed config changed to %q", m.Get().Logging.Level)
	}
	if err := os.WriteFile(path, []byte(`{ }`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m.reload(context.Background()) {
		t.Fatalf("reload of an equivalent file published")
	}
}
