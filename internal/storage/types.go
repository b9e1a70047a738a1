package storage

import (
	"context"
	"errors"
	"time"

	"duebot/internal/task"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot + append-only journal
//   - "sqlite": SQLite database file (pure Go driver)
//   - "memory": in-process only, lost on exit
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Location is applied to times read back so calendar arithmetic on due
	// dates happens in the user's zone. Nil keeps what the backend returns.
	Location *time.Location

	// Now stamps CreatedAt/UpdatedAt. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// AuditEntry records one lifecycle action. Keep it compact and schema-stable.
type AuditEntry struct {
	At        time.Time `json:"at"`
	Action    string    `json:"action"`
	TaskID    string    `json:"task_id"`
	RelatedID string    `json:"related_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Audit actions.
const (
	AuditTaskCreated       = "task.created"
	AuditTaskUpdated       = "task.updated"
	AuditTaskCompleted     = "task.completed"
	AuditTaskDeleted       = "task.deleted"
	AuditTaskRecurred      = "task.recurred"
	AuditReminderCreated   = "reminder.created"
	AuditReminderCancelled = "reminder.cancelled"
)

type Auditor interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
}

// Repository is the persistence API the app wires into the lifecycle layer.
type Repository interface {
	task.Repository
	Auditor
	// Audit returns the most recent entries, newest last.
	Audit(ctx context.Context, limit int) ([]AuditEntry, error)
	Close() error
}
