package task

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("task not found")
	ErrInvalid         = errors.New("task invalid")
	ErrAlreadyComplete = errors.New("task already complete")
)

// Store is what the reminder core consumes from the task layer.
type Store interface {
	GetTask(ctx context.Context, id string) (*Task, error)
	IsComplete(ctx context.Context, id string) (bool, error)
	CreateTask(ctx context.Context, f Fields) (*Task, error)
}

// Filter narrows ListTasks.
type Filter struct {
	IncludeComplete bool
}

// Repository is the full CRUD surface implemented by the storage backends.
type Repository interface {
	Store
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, f Filter) ([]*Task, error)
	// CompleteTask marks the task complete at the given instant.
	// It returns ErrAlreadyComplete when there is nothing to do.
	CompleteTask(ctx context.Context, id string, at time.Time) (*Task, error)
}
