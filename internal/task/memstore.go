package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Repository. It is safe for concurrent use and
// hands out copies, so callers never alias stored tasks.
type MemStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
}

// NewMemStore returns an empty store. now stamps CreatedAt/UpdatedAt and
// defaults to time.Now.
func NewMemStore(now func() time.Time) *MemStore {
	if now == nil {
		now = time.Now
	}
	return &MemStore{tasks: map[string]*Task{}, now: now}
}

func (s *MemStore) GetTask(ctx context.Context, id string) (*Task, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *MemStore) IsComplete(ctx context.Context, id string) (bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return false, fmt.Errorf("is complete %s: %w", id, ErrNotFound)
	}
	return t.IsComplete(), nil
}

func (s *MemStore) CreateTask(ctx context.Context, f Fields) (*Task, error) {
	_ = ctx
	t := New(f, s.now())
	if err := Validate(t); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
	return t.Clone(), nil
}

// Put stores t as-is (id included). Used to seed fixtures and by backends
// replaying persisted state.
func (s *MemStore) Put(t *Task) {
	s.mu.Lock()
	s.tasks[t.ID] = t.Clone()
	s.mu.Unlock()
}

func (s *MemStore) UpdateTask(ctx context.Context, t *Task) error {
	_ = ctx
	if err := Validate(t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return fmt.Errorf("update %s: %w", t.ID, ErrNotFound)
	}
	cp := t.Clone()
	cp.UpdatedAt = s.now()
	s.tasks[t.ID] = cp
	return nil
}

func (s *MemStore) DeleteTask(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemStore) CompleteTask(ctx context.Context, id string, at time.Time) (*Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("complete %s: %w", id, ErrNotFound)
	}
	if t.IsComplete() {
		return t.Clone(), ErrAlreadyComplete
	}
	done := at
	t.Status = StatusComplete
	t.CompletedAt = &done
	t.UpdatedAt = s.now()
	return t.Clone(), nil
}

// ListTasks returns tasks ordered by due date (undated last), then creation.
func (s *MemStore) ListTasks(ctx context.Context, f Filter) ([]*Task, error) {
	_ = ctx
	s.mu.RLock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.IsComplete() && !f.IncludeComplete {
			continue
		}
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()
	SortByDue(out)
	return out, nil
}

// SortByDue orders tasks by due date, undated last, ties by CreatedAt then ID.
func SortByDue(ts []*Task) {
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		switch {
		case a.Due != nil && b.Due != nil && !a.Due.Equal(*b.Due):
			return a.Due.Before(*b.Due)
		case a.Due != nil && b.Due == nil:
			return true
		case a.Due == nil && b.Due != nil:
			return false
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
