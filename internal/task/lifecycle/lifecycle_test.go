package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"duebot/internal/clock"
	"duebot/internal/eventbus"
	"duebot/internal/storage"
	"duebot/internal/task"
	"duebot/internal/task/recurrence"
	"duebot/internal/task/reminder"
	"duebot/pkg/logx"
)

type fixture struct {
	clk   *clock.Fake
	store *task.MemStore
	guard *reminder.Guard
	audit *memAudit
	bus   eventbus.Bus
	coord *Coordinator
	tasks *Tasks
}

func newFixture(t *testing.T, at time.Time) *fixture {
	t.Helper()
	f := &fixture{
		clk:   clock.NewFake(at),
		guard: reminder.NewGuard(),
		audit: &memAudit{},
		bus:   eventbus.New(),
	}
	f.store = task.NewMemStore(f.clk.Now)
	f.coord = New(f.store, f.guard, f.clk, logx.Nop(), WithBus(f.bus), WithAuditor(f.audit))
	f.tasks = NewTasks(f.store, f.coord)
	return f
}

func (f *fixture) reminder(id string) (reminder.Reminder, bool) {
	var out reminder.Reminder
	var ok bool
	f.guard.Do(func(b *reminder.Book) {
		var r *reminder.Reminder
		if r, ok = b.Get(id); ok {
			out = *r
		}
	})
	return out, ok
}

type memAudit struct {
	mu      sync.Mutex
	entries []storage.AuditEntry
}

func (a *memAudit) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
	return nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrDur(d time.Duration) *time.Duration { return &d }

func TestWeeklyCompletionClonesForward(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, time.Date(2025, 12, 10, 9, 0, 0, 0, time.UTC))

	due := time.Date(2025, 12, 13, 17, 0, 0, 0, time.UTC)
	orig, err := f.tasks.Add(ctx, task.Fields{
		Title:        "Water plants",
		Tags:         []string{"home"},
		Priority:     task.PriorityHigh,
		Due:          &due,
		Recurrence:   recurrence.Weekly,
		ReminderLead: ptrDur(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	r, ok := f.reminder(orig.ID)
	if !ok || r.State != reminder.Pending || !r.FireAt.Equal(time.Date(2025, 12, 12, 17, 0, 0, 0, time.UTC)) {
		t.Fatalf("original reminder=%+v ok=%v", r, ok)
	}

	f.clk.Set(time.Date(2025, 12, 13, 18, 0, 0, 0, time.UTC))
	done, next, err := f.tasks.Complete(ctx, orig.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.IsComplete() || done.ID != orig.ID {
		t.Fatalf("done=%+v", done)
	}
	if next == nil {
		t.Fatalf("expected next instance")
	}
	if next.ID == orig.ID || next.PreviousID != orig.ID {
		t.Fatalf("next id=%s previous=%s", next.ID, next.PreviousID)
	}
	if want := time.Date(2025, 12, 20, 17, 0, 0, 0, time.UTC); !next.Due.Equal(want) {
		t.Fatalf("next due=%s want %s", next.Due, want)
	}
	if next.IsComplete() || next.Title != orig.Title || next.Priority != orig.Priority || next.Recurrence != recurrence.Weekly {
		t.Fatalf("next instance did not carry fields: %+v", next)
	}

	if r, _ := f.reminder(orig.ID); r.State != reminder.Cancelled {
		t.Fatalf("original reminder state=%s", r.State)
	}
	nr, ok := f.reminder(next.ID)
	if !ok || nr.State != reminder.Pending {
		t.Fatalf("next reminder=%+v ok=%v", nr, ok)
	}
	if want := time.Date(2025, 12, 19, 17, 0, 0, 0, time.UTC); !nr.FireAt.Equal(want) {
		t.Fatalf("next fire=%s want %s", nr.FireAt, want)
	}

	// Original stays as history.
	got, err := f.store.GetTask(ctx, orig.ID)
	if err != nil || !got.IsComplete() {
		t.Fatalf("original after completion=%+v err=%v", got, err)
	}

	// Completing again neither clones nor fails silently.
	if _, again, err := f.tasks.Complete(ctx, orig.ID); !errors.Is(err, task.ErrAlreadyComplete) || again != nil {
		t.Fatalf("second completion next=%v err=%v", again, err)
	}
	all, _ := f.store.ListTasks(ctx, task.Filter{IncludeComplete: true})
	if len(all) != 2 {
		t.Fatalf("tasks=%d want 2", len(all))
	}
}

func TestMonthlyClampsToMonthEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	orig, err := f.tasks.Add(ctx, task.Fields{
		Title:      "Invoice",
		Due:        ptrTime(time.Date(2025, 1, 31, 9, 30, 0, 0, time.UTC)),
		Recurrence: recurrence.Monthly,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	_, next, err := f.tasks.Complete(ctx, orig.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if want := time.Date(2025, 2, 28, 9, 30, 0, 0, time.UTC); !next.Due.Equal(want) {
		t.Fatalf("next due=%s want %s", next.Due, want)
	}
	if _, ok := f.reminder(next.ID); ok {
		t.Fatalf("no lead, no reminder")
	}
}

func TestOnTaskCompleted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	t.Run("missing task", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, now)
		next, err := f.coord.OnTaskCompleted(ctx, task.NewID())
		if next != nil || err != nil {
			t.Fatalf("next=%v err=%v", next, err)
		}
	})

	t.Run("non recurring cancels reminder only", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, now)
		tk, err := f.tasks.Add(ctx, task.Fields{Title: "once", Due: ptrTime(now.Add(48 * time.Hour)), ReminderLead: ptrDur(time.Hour)})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		next, err := f.coord.OnTaskCompleted(ctx, tk.ID)
		if next != nil || err != nil {
			t.Fatalf("next=%v err=%v", next, err)
		}
		if r, _ := f.reminder(tk.ID); r.State != reminder.Cancelled {
			t.Fatalf("state=%s", r.State)
		}
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("disk gone")
		c := New(failingStore{err: boom}, reminder.NewGuard(), clock.NewFake(now), logx.Nop())
		if _, err := c.OnTaskCompleted(ctx, "x"); !errors.Is(err, boom) {
			t.Fatalf("err=%v", err)
		}
	})
}

func TestOnTaskDueOrReminderChanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	tk, err := f.tasks.Add(ctx, task.Fields{Title: "dentist", Due: ptrTime(now.Add(72 * time.Hour)), ReminderLead: ptrDur(2 * time.Hour)})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	first, _ := f.reminder(tk.ID)

	// Unchanged fire time: no new record.
	if err := f.coord.OnTaskDueOrReminderChanged(ctx, tk.ID); err != nil {
		t.Fatalf("hook: %v", err)
	}
	if again, _ := f.reminder(tk.ID); !again.CreatedAt.Equal(first.CreatedAt) || again.State != reminder.Pending {
		t.Fatalf("reminder should be untouched: %+v", again)
	}

	// Moved due date: replaced.
	f.clk.Advance(time.Minute)
	tk.Due = ptrTime(now.Add(96 * time.Hour))
	if err := f.tasks.Edit(ctx, tk); err != nil {
		t.Fatalf("edit: %v", err)
	}
	moved, _ := f.reminder(tk.ID)
	if moved.State != reminder.Pending || !moved.FireAt.Equal(now.Add(94*time.Hour)) || moved.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("moved=%+v", moved)
	}

	// Lead removed: cancelled.
	tk.ReminderLead = nil
	if err := f.tasks.Edit(ctx, tk); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if r, _ := f.reminder(tk.ID); r.State != reminder.Cancelled {
		t.Fatalf("state=%s", r.State)
	}

	// Lead restored: a fresh pending reminder.
	tk.ReminderLead = ptrDur(2 * time.Hour)
	if err := f.tasks.Edit(ctx, tk); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if r, _ := f.reminder(tk.ID); r.State != reminder.Pending {
		t.Fatalf("state=%s", r.State)
	}

	want := []string{
		storage.AuditTaskCreated, storage.AuditReminderCreated,
		storage.AuditTaskUpdated, storage.AuditReminderCancelled, storage.AuditReminderCreated,
		storage.AuditTaskUpdated, storage.AuditReminderCancelled,
		storage.AuditTaskUpdated, storage.AuditReminderCreated,
	}
	got := f.audit.actions()
	if len(got) != len(want) {
		t.Fatalf("audit=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audit[%d]=%s want %s (all %v)", i, got[i], want[i], got)
		}
	}
}

func TestOnTaskDueOrReminderChangedRejectsInvalid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	// Written by an external layer that skipped validation.
	bad := task.New(task.Fields{Title: "broken", ReminderLead: ptrDur(time.Hour)}, now)
	f.store.Put(bad)

	err := f.coord.OnTaskDueOrReminderChanged(ctx, bad.ID)
	var verr *task.ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, task.ErrInvalid) {
		t.Fatalf("err=%v", err)
	}
	if _, ok := f.reminder(bad.ID); ok {
		t.Fatalf("no reminder for an invalid task")
	}
}

func TestDeleteCancelsReminder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	events, unsub := f.bus.Subscribe(8)
	defer unsub()

	tk, err := f.tasks.Add(ctx, task.Fields{Title: "call", Due: ptrTime(now.Add(time.Hour)), ReminderLead: ptrDur(10 * time.Minute)})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.tasks.Delete(ctx, tk.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if r, _ := f.reminder(tk.ID); r.State != reminder.Cancelled {
		t.Fatalf("state=%s", r.State)
	}
	if err := f.tasks.Delete(ctx, tk.ID); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("second delete err=%v", err)
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	if len(types) != 2 || types[0] != eventbus.ReminderCreated || types[1] != eventbus.ReminderCancelled {
		t.Fatalf("events=%v", types)
	}
}

func TestEditCannotToggleCompletion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	tk, _ := f.tasks.Add(ctx, task.Fields{Title: "x"})
	tk.Status = task.StatusComplete
	tk.CompletedAt = ptrTime(now)
	if err := f.tasks.Edit(ctx, tk); !errors.Is(err, task.ErrInvalid) {
		t.Fatalf("err=%v", err)
	}
}

func TestReconcile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 12, 10, 14, 5, 0, 0, time.UTC)
	f := newFixture(t, now)

	withReminder := task.New(task.Fields{Title: "a", Due: ptrTime(now.Add(2 * time.Hour)), ReminderLead: ptrDur(time.Hour)}, now)
	noReminder := task.New(task.Fields{Title: "b", Due: ptrTime(now.Add(2 * time.Hour))}, now)
	doneTask := task.New(task.Fields{Title: "c", Due: ptrTime(now.Add(2 * time.Hour)), ReminderLead: ptrDur(time.Hour)}, now)
	doneTask.Status = task.StatusComplete
	doneTask.CompletedAt = ptrTime(now)
	for _, tk := range []*task.Task{withReminder, noReminder, doneTask} {
		f.store.Put(tk)
	}

	rep, err := f.tasks.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rep != (ReconcileReport{Tasks: 2, Created: 1}) {
		t.Fatalf("report=%+v", rep)
	}

	// Steady state.
	if rep, _ := f.tasks.Reconcile(ctx); rep.Changed() {
		t.Fatalf("second pass changed: %+v", rep)
	}

	// A fired reminder is not re-armed.
	f.guard.Do(func(b *reminder.Book) {
		r, _ := b.Get(withReminder.ID)
		r.Trigger(r.FireAt)
	})
	if rep, _ := f.tasks.Reconcile(ctx); rep.Changed() {
		t.Fatalf("triggered reminder re-armed: %+v", rep)
	}

	// Due moved behind the CRUD layer's back: replaced.
	moved := withReminder.Clone()
	moved.Due = ptrTime(now.Add(5 * time.Hour))
	f.store.Put(moved)
	other := task.New(task.Fields{Title: "d", Due: ptrTime(now.Add(3 * time.Hour)), ReminderLead: ptrDur(time.Hour)}, now)
	f.store.Put(other)
	// The triggered record is terminal, so the moved task counts as created.
	if rep, _ := f.tasks.Reconcile(ctx); rep != (ReconcileReport{Tasks: 3, Created: 2}) {
		t.Fatalf("report=%+v", rep)
	}

	// Task removed behind the CRUD layer's back: cancelled.
	if err := f.store.DeleteTask(ctx, other.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rep, _ := f.tasks.Reconcile(ctx); rep != (ReconcileReport{Tasks: 2, Cancelled: 1}) {
		t.Fatalf("report=%+v", rep)
	}
}

type failingStore struct{ err error }

func (s failingStore) GetTask(context.Context, string) (*task.Task, error) { return nil, s.err }

func (s failingStore) IsComplete(context.Context, string) (bool, error) { return false, s.err }

func (s failingStore) CreateTask(context.Context, task.Fields) (*task.Task, error) {
	return nil, s.err
}
