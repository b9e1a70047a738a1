package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"duebot/internal/task/recurrence"
)

func TestMemStoreCRUD(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)
	s := NewMemStore(func() time.Time { return now })

	due := now.Add(72 * time.Hour)
	created, err := s.CreateTask(ctx, Fields{Title: "review", Due: &due, Recurrence: recurrence.Monthly})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	got, err := s.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	got.Title = "mutated copy"
	again, _ := s.GetTask(ctx, created.ID)
	if again.Title != "review" {
		t.Fatal("GetTask returned an alias to stored state")
	}

	done, err := s.IsComplete(ctx, created.ID)
	if err != nil || done {
		t.Fatalf("IsComplete = %v, %v", done, err)
	}
	if _, err := s.CompleteTask(ctx, created.ID, now); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if _, err := s.CompleteTask(ctx, created.ID, now); !errors.Is(err, ErrAlreadyComplete) {
		t.Fatalf("second CompleteTask err = %v, want ErrAlreadyComplete", err)
	}
	if done, _ := s.IsComplete(ctx, created.ID); !done {
		t.Fatal("task should be complete")
	}

	open, _ := s.ListTasks(ctx, Filter{})
	if len(open) != 0 {
		t.Fatalf("ListTasks without complete = %d tasks", len(open))
	}
	all, _ := s.ListTasks(ctx, Filter{IncludeComplete: true})
	if len(all) != 1 {
		t.Fatalf("ListTasks with complete = %d tasks", len(all))
	}

	if err := s.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := s.GetTask(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTask after delete err = %v", err)
	}
	if _, err := s.IsComplete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("IsComplete after delete err = %v", err)
	}
}

func TestMemStoreRejectsInvalid(t *testing.T) {
	s := NewMemStore(nil)
	_, err := s.CreateTask(context.Background(), Fields{Title: "x", Recurrence: recurrence.Daily})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	tk := New(Fields{Title: "ok"}, time.Now())
	s.Put(tk)
	tk.ReminderLead = ptrDur(time.Hour)
	if err := s.UpdateTask(context.Background(), tk); !errors.Is(err, ErrInvalid) {
		t.Fatalf("UpdateTask err = %v, want ErrInvalid", err)
	}
}

func TestSortByDue(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Task{ID: "a", Due: ptrTime(base.Add(2 * time.Hour))}
	b := &Task{ID: "b", Due: ptrTime(base.Add(time.Hour))}
	c := &Task{ID: "c"}
	ts := []*Task{c, a, b}
	SortByDue(ts)
	if ts[0].ID != "b" || ts[1].ID != "a" || ts[2].ID != "c" {
		t.Fatalf("order = %s%s%s", ts[0].ID, ts[1].ID, ts[2].ID)
	}
}
