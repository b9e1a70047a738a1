package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"duebot/internal/task"
	"duebot/internal/task/recurrence"
	"duebot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

const taskColumns = `id, title, description, priority, tags, due, recurrence, reminder_lead,
	status, completed_at, created_at, updated_at, previous_id`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	cfg Config
}

func openSQLite(cfg Config, log logx.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; read-modify-write in CompleteTask
	// relies on it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log, cfg: cfg}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrations)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *sqliteStore) scanTask(row rowScanner) (*task.Task, error) {
	var (
		t                        task.Task
		tags, rec, status, prio  string
		due, completed, previous sql.NullString
		created, updated         string
		lead                     sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &prio, &tags, &due, &rec, &lead,
		&status, &completed, &created, &updated, &previous); err != nil {
		return nil, err
	}
	t.Priority = task.Priority(prio)
	t.Status = task.Status(status)
	t.PreviousID = previous.String
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("task %s tags: %w", t.ID, err)
	}
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	p, err := recurrence.ParsePattern(rec)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Recurrence = p
	if lead.Valid {
		d := time.Duration(lead.Int64)
		t.ReminderLead = &d
	}
	if t.Due, err = parseNullTime(due); err != nil {
		return nil, fmt.Errorf("task %s due: %w", t.ID, err)
	}
	if t.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, fmt.Errorf("task %s completed_at: %w", t.ID, err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("task %s created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("task %s updated_at: %w", t.ID, err)
	}
	return localize(&t, s.cfg.Location), nil
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := s.scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", id, task.ErrNotFound)
	}
	return t, err
}

func (s *sqliteStore) IsComplete(ctx context.Context, id string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("is complete %s: %w", id, task.ErrNotFound)
	}
	if err != nil {
		return false, err
	}
	return task.Status(status) == task.StatusComplete, nil
}

func (s *sqliteStore) CreateTask(ctx context.Context, f task.Fields) (*task.Task, error) {
	t := task.New(f, s.cfg.now())
	if err := task.Validate(t); err != nil {
		return nil, err
	}
	args, err := taskArgs(t)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks(`+taskColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *sqliteStore) UpdateTask(ctx context.Context, t *task.Task) error {
	if err := task.Validate(t); err != nil {
		return err
	}
	cp := t.Clone()
	cp.UpdatedAt = s.cfg.now()
	args, err := taskArgs(cp)
	if err != nil {
		return err
	}
	// id goes last for the WHERE clause.
	args = append(args[1:], args[0])
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET
		title = ?, description = ?, priority = ?, tags = ?, due = ?, recurrence = ?,
		reminder_lead = ?, status = ?, completed_at = ?, created_at = ?, updated_at = ?,
		previous_id = ?
		WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s: %w", t.ID, task.ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s: %w", id, task.ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) CompleteTask(ctx context.Context, id string, at time.Time) (*task.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	t, err := s.scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("complete %s: %w", id, task.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if t.IsComplete() {
		return t, task.ErrAlreadyComplete
	}

	now := s.cfg.now()
	done := at
	t.Status = task.StatusComplete
	t.CompletedAt = &done
	t.UpdatedAt = now
	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		string(t.Status), formatTime(done), formatTime(now), id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return localize(t, s.cfg.Location), nil
}

func (s *sqliteStore) ListTasks(ctx context.Context, f task.Filter) ([]*task.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if !f.IncludeComplete {
		q += ` WHERE status = ?`
		args = append(args, string(task.StatusIncomplete))
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Stored offsets differ across DST, so order on parsed instants.
	task.SortByDue(out)
	return out, nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = s.cfg.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, action, task_id, related_id, detail) VALUES(?,?,?,?,?)`,
		formatTime(e.At), e.Action, e.TaskID, nullStr(e.RelatedID), nullStr(e.Detail))
	return err
}

func (s *sqliteStore) Audit(ctx context.Context, limit int) ([]AuditEntry, error) {
	q := `SELECT at, action, task_id, related_id, detail FROM audit ORDER BY id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e               AuditEntry
			at              string
			related, detail sql.NullString
		)
		if err := rows.Scan(&at, &e.Action, &e.TaskID, &related, &detail); err != nil {
			return nil, err
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		if s.cfg.Location != nil {
			e.At = e.At.In(s.cfg.Location)
		}
		e.RelatedID = related.String
		e.Detail = detail.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// newest last
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func taskArgs(t *task.Task) ([]any, error) {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	tb, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	var lead any
	if t.ReminderLead != nil {
		lead = int64(*t.ReminderLead)
	}
	return []any{
		t.ID, t.Title, t.Description, string(t.Priority), string(tb),
		nullTime(t.Due), t.Recurrence.String(), lead,
		string(t.Status), nullTime(t.CompletedAt),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), nullStr(t.PreviousID),
	}, nil
}

func formatTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
