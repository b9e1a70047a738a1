package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"duebot/internal/eventbus"
	"duebot/internal/task"
	"duebot/internal/task/reminder"
	"duebot/pkg/logx"
)

type outgoing struct {
	taskID  string
	key     string
	message string
}

// Tick runs one pass over the book. The clock is sampled once; every
// decision in the pass is made against that instant.
//
// A reminder due at or before now is cancelled when its task is gone or
// complete, classified MISSED when the tick is a catch-up tick (or the
// reminder was created already late) and it is more than one interval
// overdue, and otherwise TRIGGERED with its message queued. Messages are
// delivered after the book lock is released.
//
// A stopped scheduler does not tick.
func (s *Service) Tick(ctx context.Context) TickReport {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if !s.accepting.Load() {
		return TickReport{Skipped: true}
	}

	start := time.Now()
	cfg := s.config()
	now := s.clock.Now()
	rep := TickReport{At: now}

	// The first tick after Start and any tick after a long stall (host
	// suspend, stopped process) classify stale reminders as missed.
	rep.CatchUp = s.catchUp || (!s.lastTick.IsZero() && now.Sub(s.lastTick) > 2*cfg.Interval)
	s.catchUp = false
	s.lastTick = now

	var (
		out       []outgoing
		triggered []reminder.Reminder
		missed    []reminder.Reminder
		cancelled []reminder.Reminder
	)
	s.guard.Do(func(b *reminder.Book) {
		due := b.DueBy(now)
		rep.Due = len(due)
		for _, r := range due {
			switch s.visit(ctx, r, now, cfg.Interval, rep.CatchUp, &rep) {
			case reminder.Triggered:
				triggered = append(triggered, *r)
				out = append(out, outgoing{taskID: r.TaskID, key: r.TaskID + "@" + r.FireAt.UTC().Format(time.RFC3339), message: r.Message})
			case reminder.Missed:
				missed = append(missed, *r)
			case reminder.Cancelled:
				cancelled = append(cancelled, *r)
			}
		}
		if cfg.Retention > 0 {
			rep.Pruned = b.Prune(now.Add(-cfg.Retention), func(r *reminder.Reminder) bool {
				return r.State == reminder.Triggered && s.taskOpen(ctx, r.TaskID)
			})
		}
	})
	rep.Triggered, rep.Missed, rep.Cancelled = len(triggered), len(missed), len(cancelled)

	for _, o := range out {
		if !s.accepting.Load() {
			break
		}
		if err := s.dispatch(ctx, o); err != nil {
			rep.Failed++
			s.reportNotifyError(o.taskID, err)
			continue
		}
		rep.Notified++
	}

	for _, r := range triggered {
		eventbus.Emit(s.bus, eventbus.ReminderTriggered, now, r)
	}
	for _, r := range missed {
		eventbus.Emit(s.bus, eventbus.ReminderMissed, now, r)
	}
	for _, r := range cancelled {
		eventbus.Emit(s.bus, eventbus.ReminderCancelled, now, r)
	}

	rep.Took = time.Since(start)
	s.ticks.Add(1)
	s.triggered.Add(uint64(rep.Triggered))
	s.notified.Add(uint64(rep.Notified))
	s.failed.Add(uint64(rep.Failed))
	s.mu.Lock()
	s.lastReport = rep
	s.mu.Unlock()

	if rep.Due > 0 || rep.Pruned > 0 || rep.Panics > 0 {
		s.log.Debug("tick",
			logx.Bool("catch_up", rep.CatchUp),
			logx.Int("due", rep.Due),
			logx.Int("triggered", rep.Triggered),
			logx.Int("missed", rep.Missed),
			logx.Int("cancelled", rep.Cancelled),
			logx.Int("failed", rep.Failed),
			logx.Int("pruned", rep.Pruned),
			logx.Duration("took", rep.Took),
		)
	}
	return rep
}

// visit decides one due reminder and returns the state it moved to, or
// Pending when it was left alone. Caller holds the book lock.
func (s *Service) visit(ctx context.Context, r *reminder.Reminder, now time.Time, grace time.Duration, catchUp bool, rep *TickReport) (to reminder.State) {
	defer func() {
		if p := recover(); p != nil {
			rep.Panics++
			to = reminder.Pending
			s.log.Error("reminder tick panicked", logx.String("task", r.TaskID), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()

	done, err := s.store.IsComplete(ctx, r.TaskID)
	switch {
	case errors.Is(err, task.ErrNotFound):
		done = true
	case err != nil:
		rep.Deferred++
		s.log.Warn("completion lookup failed", logx.String("task", r.TaskID), logx.Err(err))
		return reminder.Pending
	}
	if done {
		r.Cancel(now)
		return reminder.Cancelled
	}
	if (catchUp || r.CreatedLate(grace)) && r.MarkMissed(now, grace) {
		return reminder.Missed
	}
	if r.Trigger(now) {
		return reminder.Triggered
	}
	return reminder.Pending
}

// taskOpen reports whether the task may still be reconciled. A failed
// lookup counts as open so the record survives until the next tick.
func (s *Service) taskOpen(ctx context.Context, id string) bool {
	done, err := s.store.IsComplete(ctx, id)
	switch {
	case errors.Is(err, task.ErrNotFound):
		return false
	case err != nil:
		return true
	}
	return !done
}

func (s *Service) dispatch(ctx context.Context, o outgoing) (err error) {
	if s.notifier == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("notifier panic: %v", p)
		}
	}()
	if kn, ok := s.notifier.(KeyedNotifier); ok {
		return kn.NotifyKeyed(ctx, o.key, o.message)
	}
	return s.notifier.Notify(ctx, o.message)
}
