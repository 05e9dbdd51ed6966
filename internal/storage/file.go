package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"careclock/internal/reminder"
	"careclock/pkg/logx"
)

const compactEvery = 500

// fileStore keeps everything in memory and persists it as:
//   - <prefix>.snapshot.json (full state, written on compaction)
//   - <prefix>.journal.jsonl (append-only operations since the snapshot)
//
// The journal is compacted into the snapshot every compactEvery writes and
// on close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File

	st     fileState
	writes int
}

type fileState struct {
	Reminders map[string]reminder.Record `json:"reminders"`
	Logs      []reminder.Occurrence      `json:"logs"`
	State     map[string]string          `json:"state"`
}

type journalOp string

const (
	opPutReminder journalOp = "put_reminder"
	opDelReminder journalOp = "del_reminder"
	opPutState    journalOp = "put_state"
	opAppendLog   journalOp = "append_log"
	opDelLog      journalOp = "del_log"
	opModLog      journalOp = "mod_log"
)

type journalRecord struct {
	Op       journalOp            `json:"op"`
	ID       string               `json:"id,omitempty"`
	Key      string               `json:"key,omitempty"`
	Value    string               `json:"value,omitempty"`
	Reminder *reminder.Record     `json:"reminder,omitempty"`
	Log      *reminder.Occurrence `json:"log,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (*fileStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	st := fileState{
		Reminders: map[string]reminder.Record{},
		State:     map[string]string{},
	}
	if err := loadSnapshot(snapPath, &st); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	bad, err := replayJournal(journalPath, &st)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if bad > 0 {
		log.Warn("skipped malformed journal lines", logx.Int("count", bad))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("reminders", len(st.Reminders)), logx.Int("logs", len(st.Logs)))
	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		st:           st,
	}, nil
}

func (s *fileStore) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	cerr := s.compactLocked()
	err := s.journal.Close()
	s.journal = nil
	if cerr != nil {
		return cerr
	}
	return err
}

// appendLocked journals rec and applies it to the in-memory state.
func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return err
	}
	s.st.apply(rec)
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) loadReminders(context.Context) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	out := make([]reminder.Record, 0, len(s.st.Reminders))
	for _, rec := range s.st.Reminders {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fileStore) putReminder(_ context.Context, rec reminder.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(journalRecord{Op: opPutReminder, ID: rec.ID, Reminder: &rec})
}

func (s *fileStore) deleteReminder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.Reminders[id]; !ok {
		return nil
	}
	return s.appendLocked(journalRecord{Op: opDelReminder, ID: id})
}

func (s *fileStore) getState(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return "", false, ErrClosed
	}
	v, ok := s.st.State[key]
	return v, ok, nil
}

func (s *fileStore) putState(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(journalRecord{Op: opPutState, Key: key, Value: value})
}

func (s *fileStore) appendLog(_ context.Context, o reminder.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(journalRecord{Op: opAppendLog, ID: o.ID, Log: &o})
}

func (s *fileStore) findSkipLog(_ context.Context, reminderID string, at time.Time) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return "", false, ErrClosed
	}
	for i := len(s.st.Logs) - 1; i >= 0; i-- {
		o := s.st.Logs[i]
		if o.ReminderID == reminderID && o.Kind == reminder.OccurrenceSkipped && !o.Modified && o.At.Equal(at) {
			return o.ID, true, nil
		}
	}
	return "", false, nil
}

func (s *fileStore) deleteLog(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.logIndex(id) < 0 {
		return ErrNotFound
	}
	return s.appendLocked(journalRecord{Op: opDelLog, ID: id})
}

func (s *fileStore) markLogModified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.logIndex(id) < 0 {
		return ErrNotFound
	}
	return s.appendLocked(journalRecord{Op: opModLog, ID: id})
}

func (s *fileStore) listLogs(_ context.Context, f LogFilter) ([]reminder.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	var out []reminder.Occurrence
	for _, o := range s.st.Logs {
		if f.match(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (st *fileState) apply(rec journalRecord) {
	switch rec.Op {
	case opPutReminder:
		if rec.Reminder != nil {
			st.Reminders[rec.Reminder.ID] = *rec.Reminder
		}
	case opDelReminder:
		delete(st.Reminders, rec.ID)
	case opPutState:
		st.State[rec.Key] = rec.Value
	case opAppendLog:
		if rec.Log != nil {
			st.Logs = append(st.Logs, *rec.Log)
		}
	case opDelLog:
		if i := st.logIndex(rec.ID); i >= 0 {
			st.Logs = append(st.Logs[:i], st.Logs[i+1:]...)
		}
	case opModLog:
		if i := st.logIndex(rec.ID); i >= 0 {
			st.Logs[i].Modified = true
		}
	}
}

func (st *fileState) logIndex(id string) int {
	for i := range st.Logs {
		if st.Logs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.st); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out *fileState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var st fileState
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return err
	}
	for k, v := range st.Reminders {
		out.Reminders[k] = v
	}
	for k, v := range st.State {
		out.State[k] = v
	}
	out.Logs = append(out.Logs, st.Logs...)
	return nil
}

// replayJournal applies every well-formed line and counts the rest. A torn
// final line from a crash mid-write is the usual source of bad lines.
func replayJournal(path string, st *fileState) (bad int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var rec journalRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil || rec.Op == "" {
			bad++
			continue
		}
		st.apply(rec)
	}
	return bad, sc.Err()
}
