package reminder

import (
	"sort"
	"time"
)

// Book is the reminder collection keyed by task id. It keeps at most one
// record per task: the active one, or the last terminal one until pruned.
//
// Book is not locked; it is owned by a Guard.
type Book struct {
	byTask map[string]*Reminder
}

func NewBook() *Book { return &Book{byTask: map[string]*Reminder{}} }

func (b *Book) Len() int { return len(b.byTask) }

// Get returns the record for taskID.
func (b *Book) Get(taskID string) (*Reminder, bool) {
	r, ok := b.byTask[taskID]
	return r, ok
}

// Active returns the task's PENDING or MISSED reminder.
func (b *Book) Active(taskID string) (*Reminder, bool) {
	r, ok := b.byTask[taskID]
	if !ok || !r.State.Active() {
		return nil, false
	}
	return r, true
}

// Put installs r for its task. An active predecessor is cancelled first and
// returned so the caller can report it.
func (b *Book) Put(r *Reminder, now time.Time) (replaced *Reminder) {
	if old, ok := b.byTask[r.TaskID]; ok && old != r && old.Cancel(now) {
		replaced = old
	}
	b.byTask[r.TaskID] = r
	return replaced
}

// Cancel cancels the task's active reminder, if any.
func (b *Book) Cancel(taskID string, now time.Time) (*Reminder, bool) {
	r, ok := b.Active(taskID)
	if !ok {
		return nil, false
	}
	r.Cancel(now)
	return r, true
}

// Pending returns PENDING reminders ordered by FireAt.
func (b *Book) Pending() []*Reminder { return b.filter(func(r *Reminder) bool { return r.State == Pending }) }

// Missed returns MISSED reminders ordered by FireAt.
func (b *Book) Missed() []*Reminder { return b.filter(func(r *Reminder) bool { return r.State == Missed }) }

// DueBy returns PENDING reminders with FireAt <= at, ordered by FireAt.
func (b *Book) DueBy(at time.Time) []*Reminder {
	return b.filter(func(r *Reminder) bool { return r.IsDue(at) })
}

// All returns every record ordered by FireAt.
func (b *Book) All() []*Reminder { return b.filter(func(*Reminder) bool { return true }) }

// Prune drops terminal records that changed before cutoff, except those
// keep reports true for. keep may be nil.
//
// A TRIGGERED record is the only proof that a reminder already fired;
// dropping it while its task is still open lets a resync re-arm it.
func (b *Book) Prune(cutoff time.Time, keep func(*Reminder) bool) int {
	n := 0
	for id, r := range b.byTask {
		if r.State.Terminal() && r.ChangedAt.Before(cutoff) && (keep == nil || !keep(r)) {
			delete(b.byTask, id)
			n++
		}
	}
	return n
}

// Drop removes the task's record regardless of state.
func (b *Book) Drop(taskID string) {
	delete(b.byTask, taskID)
}

func (b *Book) filter(keep func(*Reminder) bool) []*Reminder {
	out := make([]*Reminder, 0, len(b.byTask))
	for _, r := range b.byTask {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}
