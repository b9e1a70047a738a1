// Package task holds the task model the reminder core reads and mutates,
// and the narrow store contracts it consumes.
//
// Task CRUD is owned by an external layer; this package only defines what
// the recurrence and reminder logic need from it.
package task

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"duebot/internal/task/recurrence"
)

type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusComplete   Status = "complete"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Task is a unit of work with an optional deadline, recurrence and reminder.
type Task struct {
	ID           string             `json:"id" validate:"required,uuid"`
	Title        string             `json:"title" validate:"required,max=255"`
	Description  string             `json:"description,omitempty"`
	Priority     Priority           `json:"priority" validate:"oneof=low medium high urgent"`
	Tags         []string           `json:"tags,omitempty" validate:"dive,required,max=64"`
	Due          *time.Time         `json:"due,omitempty"`
	Recurrence   recurrence.Pattern `json:"recurrence"`
	ReminderLead *time.Duration     `json:"reminder_lead,omitempty"`
	Status       Status             `json:"status" validate:"oneof=incomplete complete"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`

	// PreviousID links a recurrence instance to the task it was cloned from.
	PreviousID string `json:"previous_id,omitempty" validate:"omitempty,uuid"`
}

// Fields is the input for creating a task.
type Fields struct {
	Title        string
	Description  string
	Priority     Priority
	Tags         []string
	Due          *time.Time
	Recurrence   recurrence.Pattern
	ReminderLead *time.Duration
	PreviousID   string
}

func (t *Task) IsComplete() bool { return t.Status == StatusComplete }

// HasReminder reports whether the task is configured for a reminder.
func (t *Task) HasReminder() bool { return t.Due != nil && t.ReminderLead != nil }

// FireAt returns due - lead; ok is false when either is absent.
func (t *Task) FireAt() (at time.Time, ok bool) {
	if !t.HasReminder() {
		return time.Time{}, false
	}
	return t.Due.Add(-*t.ReminderLead), true
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Tags = append([]string(nil), t.Tags...)
	if t.Due != nil {
		d := *t.Due
		cp.Due = &d
	}
	if t.ReminderLead != nil {
		l := *t.ReminderLead
		cp.ReminderLead = &l
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		cp.CompletedAt = &c
	}
	return &cp
}

// NextInstance returns the fields of the instance that follows t, due at next.
// Title, description, priority, tags, pattern and reminder lead carry over.
func (t *Task) NextInstance(next time.Time) Fields {
	f := Fields{
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Tags:        append([]string(nil), t.Tags...),
		Due:         &next,
		Recurrence:  t.Recurrence,
		PreviousID:  t.ID,
	}
	if t.ReminderLead != nil {
		l := *t.ReminderLead
		f.ReminderLead = &l
	}
	return f
}

// New builds an incomplete task from f with a fresh id.
func New(f Fields, now time.Time) *Task {
	p := f.Priority
	if p == "" {
		p = PriorityMedium
	}
	t := &Task{
		ID:          NewID(),
		Title:       strings.TrimSpace(f.Title),
		Description: f.Description,
		Priority:    p,
		Tags:        normalizeTags(f.Tags),
		Recurrence:  f.Recurrence,
		Status:      StatusIncomplete,
		CreatedAt:   now,
		UpdatedAt:   now,
		PreviousID:  f.PreviousID,
	}
	if f.Due != nil {
		d := *f.Due
		t.Due = &d
	}
	if f.ReminderLead != nil {
		l := *f.ReminderLead
		t.ReminderLead = &l
	}
	return t
}

func NewID() string { return uuid.NewString() }

func normalizeTags(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, tag := range in {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
