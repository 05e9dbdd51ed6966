package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"careclock/internal/reminder"
	"careclock/pkg/logx"
)

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func openTest(t *testing.T, driver string, dir string) *Store {
	t.Helper()
	name := "careclock.json"
	if driver == "sqlite" {
		name = "careclock.db"
	}
	st, err := Open(Config{Driver: driver, Path: filepath.Join(dir, name)}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	return st
}

func mustNew(t *testing.T, m reminder.Mode, now time.Time) *reminder.Reminder {
	t.Helper()
	r, err := reminder.New(m, now)
	if err != nil {
		t.Fatalf("reminder.New: %v", err)
	}
	return r
}

func drivers() []string { return []string{"file", "sqlite"} }

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if st != nil || err != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("file driver without path accepted")
	}
}

func TestRemindersSurviveReopen(t *testing.T) {
	t.Parallel()

	for _, drv := range drivers() {
		drv := drv
		t.Run(drv, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			dir := t.TempDir()

			w, err := reminder.NewWeekly(8, 0, 2, 4, 6)
			if err != nil {
				t.Fatalf("NewWeekly: %v", err)
			}
			r := mustNew(t, w, utc(2024, 1, 1, 9, 0))
			r.Action = "water plants"
			if _, err := r.RequestSkip(utc(2024, 1, 1, 9, 0)); err != nil {
				t.Fatalf("RequestSkip: %v", err)
			}
			c, _ := reminder.NewCountdown(time.Hour)
			gone := mustNew(t, c, utc(2024, 1, 1, 9, 0))

			st := openTest(t, drv, dir)
			for _, x := range []*reminder.Reminder{r, gone} {
				if err := st.SaveReminder(ctx, x); err != nil {
					t.Fatalf("SaveReminder: %v", err)
				}
			}
			if err := st.DeleteReminder(ctx, gone.ID); err != nil {
				t.Fatalf("DeleteReminder: %v", err)
			}
			if err := st.SavePaused(ctx, true, utc(2024, 1, 2, 0, 0)); err != nil {
				t.Fatalf("SavePaused: %v", err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			st = openTest(t, drv, dir)
			defer st.Close()
			got, err := st.LoadReminders(ctx)
			if err != nil {
				t.Fatalf("LoadReminders: %v", err)
			}
			if len(got) != 1 || got[0].ID != r.ID {
				t.Fatalf("got %d reminders, want only %s", len(got), r.ID)
			}
			skip, ok := got[0].SkipState()
			skippedAt, _ := skip.SkippedAt()
			if !ok || !skip.Skipping() || !skippedAt.Equal(utc(2024, 1, 1, 9, 0)) {
				t.Fatalf("skip state not restored: %+v", skip)
			}
			if got[0].Action != "water plants" {
				t.Fatalf("action=%q", got[0].Action)
			}

			paused, at, err := st.LoadPaused(ctx)
			if err != nil || !paused || !at.Equal(utc(2024, 1, 2, 0, 0)) {
				t.Fatalf("LoadPaused = %v %v %v", paused, at, err)
			}
		})
	}
}

func TestSkipLogLookup(t *testing.T) {
	t.Parallel()

	for _, drv := range drivers() {
		drv := drv
		t.Run(drv, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openTest(t, drv, t.TempDir())
			defer st.Close()

			m, _ := reminder.NewMonthly(8, 0, 15)
			r := mustNew(t, m, utc(2024, 1, 1, 0, 0))
			at := time.Date(2024, 1, 3, 10, 0, 0, 123456789, time.UTC)

			skipped := reminder.NewOccurrence(r, reminder.OccurrenceSkipped, at)
			fired := reminder.NewOccurrence(r, reminder.OccurrenceFired, at)
			for _, o := range []reminder.Occurrence{fired, skipped} {
				if err := st.RecordOccurrence(ctx, o); err != nil {
					t.Fatalf("RecordOccurrence: %v", err)
				}
			}

			id, ok, err := st.FindSkipLog(ctx, r.ID, at)
			if err != nil || !ok || id != skipped.ID {
				t.Fatalf("FindSkipLog = %q %v %v, want %q", id, ok, err, skipped.ID)
			}
			if _, ok, _ := st.FindSkipLog(ctx, r.ID, at.Add(time.Nanosecond)); ok {
				t.Fatalf("FindSkipLog matched a different instant")
			}

			if err := st.MarkLogModified(ctx, skipped.ID); err != nil {
				t.Fatalf("MarkLogModified: %v", err)
			}
			if _, ok, _ := st.FindSkipLog(ctx, r.ID, at); ok {
				t.Fatalf("FindSkipLog matched a modified entry")
			}

			if err := st.DeleteLog(ctx, fired.ID); err != nil {
				t.Fatalf("DeleteLog: %v", err)
			}
			if err := st.DeleteLog(ctx, fired.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second DeleteLog err=%v, want ErrNotFound", err)
			}
			logs, err := st.ListLogs(ctx, LogFilter{ReminderID: r.ID})
			if err != nil {
				t.Fatalf("ListLogs: %v", err)
			}
			if len(logs) != 1 || logs[0].ID != skipped.ID || !logs[0].Modified {
				t.Fatalf("logs=%+v", logs)
			}
		})
	}
}

func TestListLogsOrderAndFilter(t *testing.T) {
	t.Parallel()

	for _, drv := range drivers() {
		drv := drv
		t.Run(drv, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openTest(t, drv, t.TempDir())
			defer st.Close()

			c, _ := reminder.NewCountdown(time.Hour)
			r := mustNew(t, c, utc(2024, 1, 1, 0, 0))
			for d := 1; d <= 5; d++ {
				kind := reminder.OccurrenceFired
				if d%2 == 0 {
					kind = reminder.OccurrenceSkipped
				}
				if err := st.RecordOccurrence(ctx, reminder.NewOccurrence(r, kind, utc(2024, 1, d, 0, 0))); err != nil {
					t.Fatalf("RecordOccurrence: %v", err)
				}
			}

			all, _ := st.ListLogs(ctx, LogFilter{})
			if len(all) != 5 || !all[0].At.Equal(utc(2024, 1, 5, 0, 0)) {
				t.Fatalf("want 5 newest-first, got %d first=%v", len(all), all[0].At)
			}
			fired, _ := st.ListLogs(ctx, LogFilter{Kind: reminder.OccurrenceFired, Limit: 2})
			if len(fired) != 2 || !fired[1].At.Equal(utc(2024, 1, 3, 0, 0)) {
				t.Fatalf("fired=%+v", fired)
			}
			since, _ := st.ListLogs(ctx, LogFilter{Since: utc(2024, 1, 4, 0, 0)})
			if len(since) != 2 {
				t.Fatalf("since: got %d want 2", len(since))
			}
		})
	}
}

func TestFileJournalReplayToleratesTornLine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	st := openTest(t, "file", dir)
	c, _ := reminder.NewCountdown(time.Hour)
	r := mustNew(t, c, utc(2024, 1, 1, 0, 0))
	if err := st.SaveReminder(ctx, r); err != nil {
		t.Fatalf("SaveReminder: %v", err)
	}

	// Simulate a crash: journal written, no compaction, torn trailing line.
	fs := st.drv.(*fileStore)
	fs.mu.Lock()
	_, _ = fs.journal.WriteString(`{"op":"put_rem`)
	_ = fs.journal.Close()
	fs.journal = nil
	fs.mu.Unlock()

	st = openTest(t, "file", dir)
	defer st.Close()
	got, err := st.LoadReminders(ctx)
	if err != nil || len(got) != 1 || got[0].ID != r.ID {
		t.Fatalf("LoadReminders = %d, %v", len(got), err)
	}
	if _, err := os.Stat(filepath.Join(dir, "careclock.snapshot.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("snapshot should not exist before a clean close, stat err=%v", err)
	}
}

func TestClosedFileStore(t *testing.T) {
	t.Parallel()

	st := openTest(t, "file", t.TempDir())
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := st.LoadReminders(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v, want ErrClosed", err)
	}
}
