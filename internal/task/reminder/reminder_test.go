package reminder

import (
	"strings"
	"testing"
	"time"
)

var base = time.Date(2025, 12, 10, 13, 0, 0, 0, time.UTC)

func TestTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		from  State
		apply func(r *Reminder) bool
		ok    bool
		want  State
	}{
		{"trigger pending at fire time", Pending, func(r *Reminder) bool { return r.Trigger(base) }, true, Triggered},
		{"trigger pending before fire time", Pending, func(r *Reminder) bool { return r.Trigger(base.Add(-time.Second)) }, false, Pending},
		{"trigger missed", Missed, func(r *Reminder) bool { return r.Trigger(base.Add(time.Hour)) }, false, Missed},
		{"trigger cancelled", Cancelled, func(r *Reminder) bool { return r.Trigger(base.Add(time.Hour)) }, false, Cancelled},
		{"cancel pending", Pending, func(r *Reminder) bool { return r.Cancel(base) }, true, Cancelled},
		{"cancel missed", Missed, func(r *Reminder) bool { return r.Cancel(base) }, true, Cancelled},
		{"cancel triggered", Triggered, func(r *Reminder) bool { return r.Cancel(base) }, false, Triggered},
		{"cancel cancelled", Cancelled, func(r *Reminder) bool { return r.Cancel(base) }, false, Cancelled},
		{"miss beyond grace", Pending, func(r *Reminder) bool { return r.MarkMissed(base.Add(65*time.Minute), time.Hour) }, true, Missed},
		{"miss within grace", Pending, func(r *Reminder) bool { return r.MarkMissed(base.Add(time.Hour), time.Hour) }, false, Pending},
		{"miss triggered", Triggered, func(r *Reminder) bool { return r.MarkMissed(base.Add(48*time.Hour), time.Hour) }, false, Triggered},
		{"surface missed", Missed, func(r *Reminder) bool { return r.Surface(base) }, true, Triggered},
		{"surface pending", Pending, func(r *Reminder) bool { return r.Surface(base) }, false, Pending},
		{"surface twice", Triggered, func(r *Reminder) bool { return r.Surface(base) }, false, Triggered},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := New("t1", "x", base.Add(24*time.Hour), 24*time.Hour, base.Add(-time.Hour))
			r.State = tt.from
			if got := tt.apply(r); got != tt.ok {
				t.Fatalf("transition ok=%v want %v", got, tt.ok)
			}
			if r.State != tt.want {
				t.Fatalf("state=%s want %s", r.State, tt.want)
			}
		})
	}
}

func TestNewFreezesFireAtAndMessage(t *testing.T) {
	t.Parallel()

	due := time.Date(2025, 12, 13, 17, 0, 0, 0, time.UTC)
	r := New("t1", "Pay rent", due, 24*time.Hour, base)
	if want := time.Date(2025, 12, 12, 17, 0, 0, 0, time.UTC); !r.FireAt.Equal(want) {
		t.Fatalf("FireAt=%s want %s", r.FireAt, want)
	}
	if r.State != Pending {
		t.Fatalf("state=%s", r.State)
	}
	if !strings.Contains(r.Message, `"Pay rent"`) || !strings.Contains(r.Message, "2025-12-13 17:00") {
		t.Fatalf("message=%q", r.Message)
	}
}

func TestCreatedLate(t *testing.T) {
	t.Parallel()

	due := base.Add(30 * time.Minute)
	// Lead of 3h puts FireAt 2.5h before creation.
	r := New("t1", "x", due, 3*time.Hour, base)
	if !r.CreatedLate(time.Hour) {
		t.Fatalf("expected late reminder")
	}
	r = New("t1", "x", due, time.Hour, base)
	if r.CreatedLate(time.Hour) {
		t.Fatalf("30m behind is within grace")
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{Pending: "pending", Triggered: "triggered", Cancelled: "cancelled", Missed: "missed", State(9): "state(9)"} {
		if got := s.String(); got != want {
			t.Fatalf("%d: %q want %q", int(s), got, want)
		}
	}
	if !Missed.Active() || Triggered.Active() || !Cancelled.Terminal() || Pending.Terminal() {
		t.Fatalf("unexpected Active/Terminal classification")
	}
}
