package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"duebot/internal/storage"
	"duebot/internal/task"
)

// Tasks performs CRUD on a repository and runs the matching lifecycle hook
// after every write. It is the mutation path used by the CLI.
type Tasks struct {
	repo  task.Repository
	coord *Coordinator
}

func NewTasks(repo task.Repository, coord *Coordinator) *Tasks {
	return &Tasks{repo: repo, coord: coord}
}

func (s *Tasks) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.repo.GetTask(ctx, id)
}

func (s *Tasks) List(ctx context.Context, f task.Filter) ([]*task.Task, error) {
	return s.repo.ListTasks(ctx, f)
}

// Add persists a new task and schedules its reminder.
func (s *Tasks) Add(ctx context.Context, f task.Fields) (*task.Task, error) {
	t, err := s.repo.CreateTask(ctx, f)
	if err != nil {
		return nil, err
	}
	s.coord.record(ctx, storage.AuditEntry{At: s.coord.clock.Now(), Action: storage.AuditTaskCreated, TaskID: t.ID})
	if err := s.coord.OnTaskDueOrReminderChanged(ctx, t.ID); err != nil {
		return t, err
	}
	return t, nil
}

// Edit replaces the stored task with t. Completion goes through Complete.
func (s *Tasks) Edit(ctx context.Context, t *task.Task) error {
	cur, err := s.repo.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	if cur.IsComplete() != t.IsComplete() {
		return fmt.Errorf("edit %s: completion state cannot change here: %w", t.ID, task.ErrInvalid)
	}
	if err := s.repo.UpdateTask(ctx, t); err != nil {
		return err
	}
	s.coord.record(ctx, storage.AuditEntry{At: s.coord.clock.Now(), Action: storage.AuditTaskUpdated, TaskID: t.ID, Detail: changed(cur, t)})
	return s.coord.OnTaskDueOrReminderChanged(ctx, t.ID)
}

// Complete marks the task complete and returns the next recurrence
// instance, if any.
func (s *Tasks) Complete(ctx context.Context, id string) (done, next *task.Task, err error) {
	return s.coord.CompleteTask(ctx, s.repo, id)
}

func (s *Tasks) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.coord.record(ctx, storage.AuditEntry{At: s.coord.clock.Now(), Action: storage.AuditTaskDeleted, TaskID: id})
	s.coord.OnTaskDeleted(ctx, id)
	return nil
}

// Reconcile rebuilds the reminder book from the repository.
func (s *Tasks) Reconcile(ctx context.Context) (ReconcileReport, error) {
	return s.coord.Reconcile(ctx, s.repo)
}

func changed(a, b *task.Task) string {
	var out []string
	if a.Title != b.Title {
		out = append(out, "title")
	}
	if !sameTime(a.Due, b.Due) {
		out = append(out, "due")
	}
	if a.Recurrence != b.Recurrence {
		out = append(out, "recurrence")
	}
	if (a.ReminderLead == nil) != (b.ReminderLead == nil) || (a.ReminderLead != nil && *a.ReminderLead != *b.ReminderLead) {
		out = append(out, "reminder_lead")
	}
	return strings.Join(out, ",")
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
