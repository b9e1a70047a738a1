// Package lifecycle keeps reminders and recurrence instances in step with
// task mutations. The external CRUD layer calls the On* hooks after it has
// written a change; Tasks wraps a repository and calls them itself.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duebot/internal/clock"
	"duebot/internal/eventbus"
	"duebot/internal/storage"
	"duebot/internal/task"
	"duebot/internal/task/recurrence"
	"duebot/internal/task/reminder"
	"duebot/pkg/logx"
)

// Coordinator applies task changes to the shared reminder book.
type Coordinator struct {
	store task.Store
	guard *reminder.Guard
	clock clock.Clock
	log   logx.Logger
	bus   eventbus.Bus
	audit storage.Auditor
}

type Option func(*Coordinator)

func WithBus(bus eventbus.Bus) Option { return func(c *Coordinator) { c.bus = bus } }

// WithAuditor records every lifecycle action. Audit failures are logged only.
func WithAuditor(a storage.Auditor) Option { return func(c *Coordinator) { c.audit = a } }

func New(store task.Store, guard *reminder.Guard, clk clock.Clock, log logx.Logger, opts ...Option) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	c := &Coordinator{
		store: store,
		guard: guard,
		clock: clk,
		log:   log.With(logx.String("comp", "lifecycle")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnTaskCompleted cancels the task's reminder and, for a recurring task,
// persists the next instance and schedules its reminder. It returns the new
// instance, or nil when the task is gone or does not recur.
func (c *Coordinator) OnTaskCompleted(ctx context.Context, id string) (*task.Task, error) {
	now := c.clock.Now()
	t, err := c.store.GetTask(ctx, id)
	if errors.Is(err, task.ErrNotFound) {
		c.cancel(ctx, id, now, "task missing")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	c.cancel(ctx, id, now, "task completed")
	return c.cloneForward(ctx, t, now)
}

// OnTaskDueOrReminderChanged creates, replaces or cancels the task's
// reminder to match its current due date and lead. A changed fire time
// always produces a new record; the old one is cancelled, never edited.
func (c *Coordinator) OnTaskDueOrReminderChanged(ctx context.Context, id string) error {
	now := c.clock.Now()
	t, err := c.store.GetTask(ctx, id)
	if errors.Is(err, task.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get task %s: %w", id, err)
	}
	if err := task.Validate(t); err != nil {
		return err
	}
	if t.IsComplete() || !t.HasReminder() {
		c.cancel(ctx, id, now, "reminder removed")
		return nil
	}
	c.schedule(ctx, t, now)
	return nil
}

// OnTaskDeleted cancels the task's reminder.
func (c *Coordinator) OnTaskDeleted(ctx context.Context, id string) {
	c.cancel(ctx, id, c.clock.Now(), "task deleted")
}

// Completer marks a task complete; task.Repository implements it.
type Completer interface {
	CompleteTask(ctx context.Context, id string, at time.Time) (*task.Task, error)
}

// CompleteTask marks the task complete and cancels its reminder while
// holding the book lock, so a concurrent scheduler tick sees either the
// incomplete task with a live reminder or the complete task with none.
// It then clones a recurring task forward.
func (c *Coordinator) CompleteTask(ctx context.Context, repo Completer, id string) (done, next *task.Task, err error) {
	now := c.clock.Now()
	var cancelled *reminder.Reminder
	c.guard.Do(func(b *reminder.Book) {
		done, err = repo.CompleteTask(ctx, id, now)
		if err != nil {
			return
		}
		if r, ok := b.Cancel(id, now); ok {
			cp := *r
			cancelled = &cp
		}
	})
	if errors.Is(err, task.ErrAlreadyComplete) {
		return done, nil, err
	}
	if err != nil {
		return nil, nil, fmt.Errorf("complete task %s: %w", id, err)
	}
	c.record(ctx, storage.AuditEntry{At: now, Action: storage.AuditTaskCompleted, TaskID: id})
	if cancelled != nil {
		c.noteCancelled(ctx, cancelled, now, "task completed")
	}
	next, err = c.cloneForward(ctx, done, now)
	return done, next, err
}

func (c *Coordinator) cloneForward(ctx context.Context, t *task.Task, now time.Time) (*task.Task, error) {
	if !t.Recurrence.Recurring() || t.Due == nil {
		return nil, nil
	}
	due := recurrence.Next(*t.Due, t.Recurrence)
	next, err := c.store.CreateTask(ctx, t.NextInstance(due))
	if err != nil {
		return nil, fmt.Errorf("create next instance of %s: %w", t.ID, err)
	}
	c.log.Info("task recurred",
		logx.String("task", t.ID),
		logx.String("next", next.ID),
		logx.String("pattern", t.Recurrence.String()),
		logx.Time("due", due),
	)
	eventbus.Emit(c.bus, eventbus.TaskRecurred, now, Recurred{From: t.ID, To: next.ID, Due: due})
	c.record(ctx, storage.AuditEntry{At: now, Action: storage.AuditTaskRecurred, TaskID: next.ID, RelatedID: t.ID, Detail: t.Recurrence.String()})

	if next.HasReminder() {
		c.schedule(ctx, next, now)
	}
	return next, nil
}

// Recurred is the payload of TaskRecurred events.
type Recurred struct {
	From string
	To   string
	Due  time.Time
}

// schedule ensures t has an active reminder at its current fire time.
func (c *Coordinator) schedule(ctx context.Context, t *task.Task, now time.Time) {
	fireAt, _ := t.FireAt()
	var created, replaced *reminder.Reminder
	c.guard.Do(func(b *reminder.Book) {
		if cur, ok := b.Active(t.ID); ok && cur.FireAt.Equal(fireAt) {
			return
		}
		r := reminder.New(t.ID, t.Title, *t.Due, *t.ReminderLead, now)
		if old := b.Put(r, now); old != nil {
			cp := *old
			replaced = &cp
		}
		cp := *r
		created = &cp
	})
	if replaced != nil {
		c.noteCancelled(ctx, replaced, now, "fire time changed")
	}
	if created != nil {
		c.log.Debug("reminder created", logx.String("task", t.ID), logx.Time("fire_at", created.FireAt))
		eventbus.Emit(c.bus, eventbus.ReminderCreated, now, *created)
		c.record(ctx, storage.AuditEntry{At: now, Action: storage.AuditReminderCreated, TaskID: t.ID, Detail: created.FireAt.Format(time.RFC3339)})
	}
}

func (c *Coordinator) cancel(ctx context.Context, id string, now time.Time, why string) {
	var cancelled *reminder.Reminder
	c.guard.Do(func(b *reminder.Book) {
		if r, ok := b.Cancel(id, now); ok {
			cp := *r
			cancelled = &cp
		}
	})
	if cancelled != nil {
		c.noteCancelled(ctx, cancelled, now, why)
	}
}

func (c *Coordinator) noteCancelled(ctx context.Context, r *reminder.Reminder, now time.Time, why string) {
	c.log.Debug("reminder cancelled", logx.String("task", r.TaskID), logx.String("reason", why))
	eventbus.Emit(c.bus, eventbus.ReminderCancelled, now, *r)
	c.record(ctx, storage.AuditEntry{At: now, Action: storage.AuditReminderCancelled, TaskID: r.TaskID, Detail: why})
}

func (c *Coordinator) record(ctx context.Context, e storage.AuditEntry) {
	if c.audit == nil {
		return
	}
	if err := c.audit.AppendAudit(ctx, e); err != nil {
		c.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}
