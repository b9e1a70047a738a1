package scheduler

import (
	"context"
	"time"
)

// Config controls the reminder tick.
type Config struct {
	Enabled  bool
	Interval time.Duration // tick period; also the grace for MISSED classification

	// Resync is a schedule string (see ParseSchedule) for rebuilding the
	// reminder book from the task store. Empty disables periodic resync.
	Resync string

	// Retention keeps terminal reminder records this long before pruning.
	// Zero disables pruning.
	Retention time.Duration

	Timezone string // IANA TZ applied to cron-style Resync schedules
}

const (
	DefaultInterval  = time.Minute
	DefaultResync    = "5m"
	DefaultRetention = 24 * time.Hour
)

// Notifier delivers a reminder message. Errors are logged, never retried.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// KeyedNotifier is implemented by notifiers that dedup per key. The
// scheduler keys each message by task and fire time, so reminders of
// different tasks with the same title and due date are all delivered.
type KeyedNotifier interface {
	NotifyKeyed(ctx context.Context, key, message string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, message string) error

func (f NotifierFunc) Notify(ctx context.Context, message string) error { return f(ctx, message) }

// ResyncFunc rebuilds the reminder book from the task store.
type ResyncFunc func(ctx context.Context) error

// TickReport summarizes one tick.
type TickReport struct {
	At        time.Time     `json:"at"`
	CatchUp   bool          `json:"catch_up"`
	Skipped   bool          `json:"skipped,omitempty"`
	Due       int           `json:"due"`
	Triggered int           `json:"triggered"`
	Missed    int           `json:"missed"`
	Cancelled int           `json:"cancelled"`
	Deferred  int           `json:"deferred"` // completion lookup failed; retried next tick
	Notified  int           `json:"notified"`
	Failed    int           `json:"failed"`
	Pruned    int           `json:"pruned"`
	Panics    int           `json:"panics"`
	Took      time.Duration `json:"took"`
}

type Snapshot struct {
	Running   bool          `json:"running"`
	Enabled   bool          `json:"enabled"`
	Interval  time.Duration `json:"interval"`
	Resync    string        `json:"resync"`
	Retention time.Duration `json:"retention"`
	Timezone  string        `json:"timezone"`

	NextTick   time.Time  `json:"next_tick"`
	NextResync time.Time  `json:"next_resync"`
	LastTick   TickReport `json:"last_tick"`
	LastResync time.Time  `json:"last_resync"`
	ResyncErr  string     `json:"resync_err,omitempty"`

	Pending int `json:"pending"`
	Missed  int `json:"missed"`
	Records int `json:"records"`

	Ticks     uint64 `json:"ticks"`
	Triggered uint64 `json:"triggered"`
	Notified  uint64 `json:"notified"`
	Failed    uint64 `json:"failed"`
	Surfaced  uint64 `json:"surfaced"`
}
