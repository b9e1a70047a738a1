package scheduler

import "duebot/internal/task/reminder"

// Snapshot is a point-in-time view for diagnostics.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	snap := Snapshot{
		Running:    s.accepting.Load(),
		Enabled:    cfg.Enabled,
		Interval:   cfg.Interval,
		Resync:     cfg.Resync,
		Retention:  cfg.Retention,
		Timezone:   cfg.Timezone,
		LastTick:   s.lastReport,
		LastResync: s.lastResync,
		ResyncErr:  s.resyncErr,
	}
	if s.c != nil {
		if s.tickID != 0 {
			snap.NextTick = s.c.Entry(s.tickID).Next
		}
		if s.resyncID != 0 {
			snap.NextResync = s.c.Entry(s.resyncID).Next
		}
	}
	s.mu.Unlock()

	s.guard.Do(func(b *reminder.Book) {
		snap.Records = b.Len()
		snap.Pending = len(b.Pending())
		snap.Missed = len(b.Missed())
	})

	snap.Ticks = s.ticks.Load()
	snap.Triggered = s.triggered.Load()
	snap.Notified = s.notified.Load()
	snap.Failed = s.failed.Load()
	snap.Surfaced = s.surfaced.Load()
	return snap
}
