package storage

import (
	"context"
	"errors"
	"time"

	"careclock/internal/reminder"
)

var (
	ErrClosed   = errors.New("storage closed")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": snapshot + journal files next to Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// State keys.
const (
	statePaused = "paused"
)

// LogFilter narrows ListLogs. Zero values match everything.
type LogFilter struct {
	ReminderID string
	Kind       reminder.OccurrenceKind
	Since      time.Time
	Limit      int
}

func (f LogFilter) match(o reminder.Occurrence) bool {
	if f.ReminderID != "" && o.ReminderID != f.ReminderID {
		return false
	}
	if f.Kind != "" && o.Kind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && o.At.Before(f.Since) {
		return false
	}
	return true
}

// driver is the record-level contract each backend implements.
type driver interface {
	loadReminders(ctx context.Context) ([]reminder.Record, error)
	putReminder(ctx context.Context, rec reminder.Record) error
	deleteReminder(ctx context.Context, id string) error

	getState(ctx context.Context, key string) (string, bool, error)
	putState(ctx context.Context, key, value string) error

	appendLog(ctx context.Context, o reminder.Occurrence) error
	findSkipLog(ctx context.Context, reminderID string, at time.Time) (string, bool, error)
	deleteLog(ctx context.Context, id string) error
	markLogModified(ctx context.Context, id string) error
	// listLogs returns matches newest first.
	listLogs(ctx context.Context, f LogFilter) ([]reminder.Occurrence, error)

	close() error
}
