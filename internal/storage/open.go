package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"

	"duebot/internal/task"
	"duebot/pkg/logx"
)

// Open initializes the configured backend.
func Open(cfg Config, log logx.Logger) (Repository, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"))

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nil, ErrDisabled
	case "memory", "mem":
		return newMemory(cfg), nil
	case "file":
		st, err := openFile(afero.NewOsFs(), cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite", "sqlite3":
		st, err := openSQLite(cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// localize converts the task's instants to loc so calendar arithmetic on
// the due date follows the user's zone rules.
func localize(t *task.Task, loc *time.Location) *task.Task {
	if t == nil || loc == nil {
		return t
	}
	if t.Due != nil {
		d := t.Due.In(loc)
		t.Due = &d
	}
	if t.CompletedAt != nil {
		c := t.CompletedAt.In(loc)
		t.CompletedAt = &c
	}
	t.CreatedAt = t.CreatedAt.In(loc)
	t.UpdatedAt = t.UpdatedAt.In(loc)
	return t
}

func lastN(entries []AuditEntry, n int) []AuditEntry {
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return append([]AuditEntry(nil), entries...)
}
