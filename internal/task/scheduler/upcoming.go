package scheduler

import (
	"time"

	"duebot/internal/eventbus"
	"duebot/internal/task/reminder"
)

// UpcomingReminders returns every MISSED reminder, moved to TRIGGERED and
// flagged Overdue, followed by the PENDING reminders firing within the
// window, ordered by fire time. A missed reminder is therefore returned by
// exactly one call.
func (s *Service) UpcomingReminders(within time.Duration) []reminder.Reminder {
	now := s.clock.Now()
	limit := now.Add(within)

	var out, surfaced []reminder.Reminder
	s.guard.Do(func(b *reminder.Book) {
		for _, r := range b.Missed() {
			if !r.Surface(now) {
				continue
			}
			cp := *r
			cp.Overdue = true
			surfaced = append(surfaced, cp)
		}
		out = append(out, surfaced...)
		for _, r := range b.Pending() {
			if r.FireAt.After(limit) {
				break
			}
			out = append(out, *r)
		}
	})

	s.surfaced.Add(uint64(len(surfaced)))
	for _, r := range surfaced {
		eventbus.Emit(s.bus, eventbus.ReminderSurfaced, now, r)
	}
	return out
}
