package lifecycle

import (
	"context"
	"fmt"

	"duebot/internal/eventbus"
	"duebot/internal/task"
	"duebot/internal/task/reminder"
	"duebot/pkg/logx"
)

// Lister enumerates tasks; task.Repository implements it.
type Lister interface {
	ListTasks(ctx context.Context, f task.Filter) ([]*task.Task, error)
}

type ReconcileReport struct {
	Tasks     int `json:"tasks"`
	Created   int `json:"created"`
	Replaced  int `json:"replaced"`
	Cancelled int `json:"cancelled"`
}

func (r ReconcileReport) Changed() bool { return r.Created+r.Replaced+r.Cancelled > 0 }

// Reconcile brings the book in line with the incomplete tasks in the store:
// reminders are created for tasks that need one, replaced when the fire
// time moved and cancelled when the task is gone, complete or no longer
// configured for a reminder. A triggered record at the current fire time is
// left alone so a reminder that already fired is not re-armed.
func (c *Coordinator) Reconcile(ctx context.Context, src Lister) (ReconcileReport, error) {
	tasks, err := src.ListTasks(ctx, task.Filter{})
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list tasks: %w", err)
	}
	now := c.clock.Now()
	rep := ReconcileReport{Tasks: len(tasks)}

	var created, cancelled []reminder.Reminder
	c.guard.Do(func(b *reminder.Book) {
		live := make(map[string]struct{}, len(tasks))
		for _, t := range tasks {
			if t.IsComplete() {
				continue
			}
			live[t.ID] = struct{}{}
			fireAt, ok := t.FireAt()
			if !ok || task.Validate(t) != nil {
				if r, ok := b.Cancel(t.ID, now); ok {
					cancelled = append(cancelled, *r)
				}
				continue
			}
			if cur, ok := b.Get(t.ID); ok && cur.FireAt.Equal(fireAt) && cur.State != reminder.Cancelled {
				continue
			}
			r := reminder.New(t.ID, t.Title, *t.Due, *t.ReminderLead, now)
			if old := b.Put(r, now); old != nil {
				rep.Replaced++
				cancelled = append(cancelled, *old)
			} else {
				rep.Created++
			}
			created = append(created, *r)
		}
		for _, r := range b.All() {
			if _, ok := live[r.TaskID]; ok || !r.State.Active() {
				continue
			}
			r.Cancel(now)
			cancelled = append(cancelled, *r)
		}
	})
	rep.Cancelled = len(cancelled) - rep.Replaced

	for _, r := range created {
		eventbus.Emit(c.bus, eventbus.ReminderCreated, now, r)
	}
	for _, r := range cancelled {
		eventbus.Emit(c.bus, eventbus.ReminderCancelled, now, r)
	}
	if rep.Changed() {
		c.log.Info("reminders reconciled",
			logx.Int("tasks", rep.Tasks),
			logx.Int("created", rep.Created),
			logx.Int("replaced", rep.Replaced),
			logx.Int("cancelled", rep.Cancelled),
		)
	}
	return rep, nil
}
