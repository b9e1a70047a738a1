// Package reminder implements the per-task reminder state machine and the
// collection the scheduler polls.
//
//	PENDING ──Trigger──▶ TRIGGERED
//	   │ └────Cancel───▶ CANCELLED
//	   └──MarkMissed──▶ MISSED ──Surface──▶ TRIGGERED
//
// Any other transition is a no-op that reports false.
package reminder

import (
	"fmt"
	"time"
)

type State int

const (
	Pending State = iota
	Triggered
	Cancelled
	Missed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Triggered:
		return "triggered"
	case Cancelled:
		return "cancelled"
	case Missed:
		return "missed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether the reminder still has something to deliver.
func (s State) Active() bool { return s == Pending || s == Missed }

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Triggered || s == Cancelled }

// Reminder is the notification record of one task. FireAt and Message are
// frozen at creation; a change of due date or lead replaces the record.
type Reminder struct {
	TaskID    string    `json:"task_id"`
	Due       time.Time `json:"due"`
	FireAt    time.Time `json:"fire_at"`
	State     State     `json:"state"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ChangedAt time.Time `json:"changed_at"`

	// Overdue marks a MISSED reminder handed out by a display query.
	Overdue bool `json:"overdue,omitempty"`
}

// New returns a PENDING reminder firing lead before due.
func New(taskID, title string, due time.Time, lead time.Duration, now time.Time) *Reminder {
	return &Reminder{
		TaskID:    taskID,
		Due:       due,
		FireAt:    due.Add(-lead),
		State:     Pending,
		Message:   Render(title, due),
		CreatedAt: now,
		ChangedAt: now,
	}
}

// Render builds the display message from the title and due date as they are
// at creation time.
func Render(title string, due time.Time) string {
	return fmt.Sprintf("Reminder: %q is due %s", title, due.Format("Mon 2006-01-02 15:04 MST"))
}

// IsDue reports whether the reminder is pending and its fire time has come.
func (r *Reminder) IsDue(now time.Time) bool {
	return r.State == Pending && !now.Before(r.FireAt)
}

// CreatedLate reports whether FireAt was already more than grace in the past
// when the reminder was created (lead larger than the time left to due).
func (r *Reminder) CreatedLate(grace time.Duration) bool {
	return r.CreatedAt.Sub(r.FireAt) > grace
}

// Trigger moves PENDING to TRIGGERED once now has reached FireAt.
func (r *Reminder) Trigger(now time.Time) bool {
	if !r.IsDue(now) {
		return false
	}
	r.set(Triggered, now)
	return true
}

// Cancel moves PENDING to CANCELLED. A MISSED reminder whose task went away
// is cancelled as well, so nothing stale is surfaced later.
func (r *Reminder) Cancel(now time.Time) bool {
	if !r.State.Active() {
		return false
	}
	r.set(Cancelled, now)
	return true
}

// MarkMissed moves PENDING to MISSED when now is more than grace past FireAt.
func (r *Reminder) MarkMissed(now time.Time, grace time.Duration) bool {
	if r.State != Pending || now.Sub(r.FireAt) <= grace {
		return false
	}
	r.set(Missed, now)
	return true
}

// Surface moves MISSED to TRIGGERED; callers present the reminder as overdue
// exactly when this returns true.
func (r *Reminder) Surface(now time.Time) bool {
	if r.State != Missed {
		return false
	}
	r.set(Triggered, now)
	return true
}

func (r *Reminder) set(s State, now time.Time) {
	r.State = s
	r.ChangedAt = now
}
