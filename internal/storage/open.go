package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"careclock/internal/orchestrator"
	"careclock/internal/reminder"
	"careclock/pkg/logx"
)

// Store is the persistence API used by the orchestrator and the CLI.
// It satisfies orchestrator.Persister and orchestrator.LogSink.
type Store struct {
	drv    driver
	driver string
	log    logx.Logger
}

var (
	_ orchestrator.Persister = (*Store)(nil)
	_ orchestrator.LogSink   = (*Store)(nil)
)

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" || name == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.Component("storage"), logx.String("driver", name))

	var (
		drv driver
		err error
	)
	switch name {
	case "file":
		drv, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		drv, err = openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + name)
	}
	if err != nil {
		return nil, err
	}
	return &Store{drv: drv, driver: name, log: log}, nil
}

// Driver names the active backend.
func (s *Store) Driver() string { return s.driver }

func (s *Store) Close() error { return s.drv.close() }

// LoadReminders returns every stored reminder. Records that fail to decode
// are reported in the joined error and left out of the result.
func (s *Store) LoadReminders(ctx context.Context) ([]*reminder.Reminder, error) {
	recs, err := s.drv.loadReminders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*reminder.Reminder, 0, len(recs))
	var errs []error
	for _, rec := range recs {
		r, err := reminder.FromRecord(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("reminder %s: %w", rec.ID, err))
			continue
		}
		out = append(out, r)
	}
	return out, errors.Join(errs...)
}

func (s *Store) SaveReminder(ctx context.Context, r *reminder.Reminder) error {
	if r == nil || r.ID == "" {
		return errors.New("reminder id required")
	}
	return s.drv.putReminder(ctx, r.ToRecord())
}

func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	return s.drv.deleteReminder(ctx, id)
}

func (s *Store) GetState(ctx context.Context, key string) (string, bool, error) {
	return s.drv.getState(ctx, key)
}

func (s *Store) PutState(ctx context.Context, key, value string) error {
	return s.drv.putState(ctx, key, value)
}

type pausedState struct {
	Paused bool      `json:"paused"`
	At     time.Time `json:"at,omitempty"`
}

func (s *Store) SavePaused(ctx context.Context, paused bool, at time.Time) error {
	st := pausedState{Paused: paused}
	if paused {
		st.At = at.UTC()
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.drv.putState(ctx, statePaused, string(b))
}

// LoadPaused returns the persisted global pause flag. A missing value means
// not paused.
func (s *Store) LoadPaused(ctx context.Context) (bool, time.Time, error) {
	v, ok, err := s.drv.getState(ctx, statePaused)
	if err != nil || !ok {
		return false, time.Time{}, err
	}
	var st pausedState
	if err := json.Unmarshal([]byte(v), &st); err != nil {
		return false, time.Time{}, fmt.Errorf("decode pause state: %w", err)
	}
	if !st.Paused {
		return false, time.Time{}, nil
	}
	return true, st.At, nil
}

func (s *Store) RecordOccurrence(ctx context.Context, o reminder.Occurrence) error {
	if o.ID == "" {
		o.ID = reminder.NewID()
	}
	if o.ReminderID == "" {
		return errors.New("occurrence reminder id required")
	}
	o.At = o.At.UTC()
	return s.drv.appendLog(ctx, o)
}

// FindSkipLog returns the id of an unmodified skip entry for reminderID
// logged at exactly at.
func (s *Store) FindSkipLog(ctx context.Context, reminderID string, at time.Time) (string, bool, error) {
	return s.drv.findSkipLog(ctx, reminderID, at.UTC())
}

func (s *Store) DeleteLog(ctx context.Context, id string) error {
	return s.drv.deleteLog(ctx, id)
}

// MarkLogModified flags an entry as edited. A modified skip entry survives
// a manual unskip.
func (s *Store) MarkLogModified(ctx context.Context, id string) error {
	return s.drv.markLogModified(ctx, id)
}

func (s *Store) ListLogs(ctx context.Context, f LogFilter) ([]reminder.Occurrence, error) {
	return s.drv.listLogs(ctx, f)
}
