package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"duebot/internal/task"
	"duebot/pkg/logx"
)

// compactEvery is the number of journal records after which the journal is
// folded into the snapshot.
const compactEvery = 500

// fileStore keeps the working set in memory and persists every mutation.
//
// Files:
//   - <prefix>.tasks.snapshot.json (periodic snapshot)
//   - <prefix>.tasks.journal.jsonl (append-only journal)
//   - <prefix>.audit.jsonl         (append-only JSON Lines)
type fileStore struct {
	fs  afero.Fs
	log logx.Logger
	loc *time.Location

	// mu orders journal writes with the in-memory mutation they record.
	mu sync.Mutex

	mem *task.MemStore

	snapshotPath string
	journalPath  string
	auditPath    string

	journal   afero.File
	auditFile afero.File

	writes int
	closed bool
}

type journalRecord struct {
	Op   string     `json:"op"`
	ID   string     `json:"id"`
	Task *task.Task `json:"task,omitempty"`
}

const (
	opPut    = "put"
	opDelete = "delete"
)

func openFile(fs afero.Fs, cfg Config, log logx.Logger) (*fileStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		fs:           fs,
		log:          log,
		loc:          cfg.Location,
		mem:          task.NewMemStore(cfg.now),
		snapshotPath: prefix + ".tasks.snapshot.json",
		journalPath:  prefix + ".tasks.journal.jsonl",
		auditPath:    prefix + ".audit.jsonl",
	}

	if err := s.loadSnapshot(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	replayed, err := s.replayJournal()
	if err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	af, err := fs.OpenFile(s.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	jf, err := fs.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}
	s.auditFile = af
	s.journal = jf

	if replayed > 0 {
		s.mu.Lock()
		err := s.compactLocked()
		s.mu.Unlock()
		if err != nil {
			log.Warn("journal compact failed", logx.Err(err))
		}
	}
	return s, nil
}

func (s *fileStore) loadSnapshot() error {
	b, err := afero.ReadFile(s.fs, s.snapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(b) == 0 {
		return nil
	}
	var ts []*task.Task
	if err := json.Unmarshal(b, &ts); err != nil {
		return err
	}
	for _, t := range ts {
		if t == nil || t.ID == "" {
			continue
		}
		s.mem.Put(localize(t, s.loc))
	}
	return nil
}

// replayJournal applies journal records on top of the snapshot. A torn last
// line (crash mid-write) is skipped.
func (s *fileStore) replayJournal() (int, error) {
	f, err := s.fs.Open(s.journalPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var rec journalRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			s.log.Warn("skipping corrupt journal record", logx.Int("line", n+1), logx.Err(err))
			continue
		}
		switch rec.Op {
		case opPut:
			if rec.Task != nil {
				s.mem.Put(localize(rec.Task, s.loc))
			}
		case opDelete:
			_ = s.mem.DeleteTask(context.Background(), rec.ID)
		}
		n++
	}
	return n, sc.Err()
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.closed {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

// compactLocked writes a fresh snapshot atomically and truncates the journal.
func (s *fileStore) compactLocked() error {
	ts, err := s.mem.ListTasks(context.Background(), task.Filter{IncludeComplete: true})
	if err != nil {
		return err
	}
	b, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	tmp := s.snapshotPath + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o600); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 0)
	return err
}

func (s *fileStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return s.mem.GetTask(ctx, id)
}

func (s *fileStore) IsComplete(ctx context.Context, id string) (bool, error) {
	return s.mem.IsComplete(ctx, id)
}

func (s *fileStore) ListTasks(ctx context.Context, f task.Filter) ([]*task.Task, error) {
	return s.mem.ListTasks(ctx, f)
}

func (s *fileStore) CreateTask(ctx context.Context, f task.Fields) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	t, err := s.mem.CreateTask(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := s.appendLocked(journalRecord{Op: opPut, ID: t.ID, Task: t}); err != nil {
		_ = s.mem.DeleteTask(ctx, t.ID)
		return nil, err
	}
	return t, nil
}

func (s *fileStore) UpdateTask(ctx context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, err := s.mem.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	if err := s.mem.UpdateTask(ctx, t); err != nil {
		return err
	}
	stored, err := s.mem.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	if err := s.appendLocked(journalRecord{Op: opPut, ID: t.ID, Task: stored}); err != nil {
		s.mem.Put(prev)
		return err
	}
	return nil
}

func (s *fileStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, err := s.mem.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if err := s.mem.DeleteTask(ctx, id); err != nil {
		return err
	}
	if err := s.appendLocked(journalRecord{Op: opDelete, ID: id}); err != nil {
		s.mem.Put(prev)
		return err
	}
	return nil
}

func (s *fileStore) CompleteTask(ctx context.Context, id string, at time.Time) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	prev, err := s.mem.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.mem.CompleteTask(ctx, id, at)
	if err != nil {
		return t, err
	}
	if err := s.appendLocked(journalRecord{Op: opPut, ID: id, Task: t}); err != nil {
		s.mem.Put(prev)
		return nil, err
	}
	return t, nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Audit(ctx context.Context, limit int) ([]AuditEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fs.Open(s.auditPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lastN(out, limit), nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.compactLocked()
	s.closed = true
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	if cerr := s.auditFile.Close(); err == nil {
		err = cerr
	}
	return err
}
