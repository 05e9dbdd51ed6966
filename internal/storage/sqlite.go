package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"careclock/internal/reminder"
	"careclock/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (*sqliteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) loadReminders(ctx context.Context) ([]reminder.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM reminders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Record
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var rec reminder.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			s.log.Warn("undecodable reminder row", logx.Reminder(id), logx.Err(err))
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) putReminder(ctx context.Context, rec reminder.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reminders(id, kind, data, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET kind=excluded.kind, data=excluded.data, updated_at=excluded.updated_at`,
		rec.ID, rec.Kind, string(b), time.Now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) deleteReminder(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) getState(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *sqliteStore) putState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state(key, value) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

func (s *sqliteStore) appendLog(ctx context.Context, o reminder.Occurrence) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO occurrences(id, reminder_id, at_ns, kind, action, custom_label, modified)
		 VALUES(?,?,?,?,?,?,?)`,
		o.ID, o.ReminderID, o.At.UnixNano(), string(o.Kind), nullStr(o.Action), nullStr(o.CustomLabel), boolInt(o.Modified),
	)
	return err
}

func (s *sqliteStore) findSkipLog(ctx context.Context, reminderID string, at time.Time) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM occurrences
		 WHERE reminder_id = ? AND kind = ? AND at_ns = ? AND modified = 0
		 ORDER BY rowid DESC LIMIT 1`,
		reminderID, string(reminder.OccurrenceSkipped), at.UnixNano(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *sqliteStore) deleteLog(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM occurrences WHERE id = ?`, id)
}

func (s *sqliteStore) markLogModified(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE occurrences SET modified = 1 WHERE id = ?`, id)
}

func (s *sqliteStore) execOne(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) listLogs(ctx context.Context, f LogFilter) ([]reminder.Occurrence, error) {
	var (
		where []string
		args  []any
	)
	if f.ReminderID != "" {
		where = append(where, "reminder_id = ?")
		args = append(args, f.ReminderID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if !f.Since.IsZero() {
		where = append(where, "at_ns >= ?")
		args = append(args, f.Since.UnixNano())
	}
	q := `SELECT id, reminder_id, at_ns, kind, action, custom_label, modified FROM occurrences`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY at_ns DESC, rowid DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Occurrence
	for rows.Next() {
		var (
			o             reminder.Occurrence
			atNS          int64
			kind          string
			action, label sql.NullString
			modified      int
		)
		if err := rows.Scan(&o.ID, &o.ReminderID, &atNS, &kind, &action, &label, &modified); err != nil {
			return nil, err
		}
		o.At = time.Unix(0, atNS).UTC()
		o.Kind = reminder.OccurrenceKind(kind)
		o.Action, o.CustomLabel = action.String, label.String
		o.Modified = modified != 0
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
