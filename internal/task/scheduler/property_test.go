package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"duebot/internal/task/reminder"
)

// Whatever the clock does between ticks, no reminder is delivered twice and
// every reminder ends up in exactly one state.
func TestFiringIsIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		start := time.Date(2025, 12, 10, 8, 0, 0, 0, time.UTC)
		e := newEnv(t, start)
		e.svc.Apply(Config{Enabled: true, Interval: time.Hour}) // keep terminal records

		n := rapid.IntRange(1, 8).Draw(rt, "tasks")
		for i := 0; i < n; i++ {
			dueIn := time.Duration(rapid.IntRange(1, 48*60).Draw(rt, "dueMin")) * time.Minute
			lead := time.Duration(rapid.IntRange(1, 24*60).Draw(rt, "leadMin")) * time.Minute
			e.add(t, fmt.Sprintf("task-%d", i), start.Add(dueIn), lead)
		}
		e.svc.Start(ctx)

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			step := time.Duration(rapid.IntRange(-120, 300).Draw(rt, "stepMin")) * time.Minute
			e.clk.Advance(step)
			e.svc.Tick(ctx)
			if rapid.Bool().Draw(rt, "surface") {
				e.svc.UpcomingReminders(time.Hour)
			}
		}
		e.svc.Stop(ctx)

		seen := map[string]int{}
		e.rec.mu.Lock()
		for _, m := range e.rec.msgs {
			seen[m]++
		}
		e.rec.mu.Unlock()
		for m, c := range seen {
			if c > 1 {
				rt.Fatalf("%q delivered %d times", m, c)
			}
		}

		triggered := 0
		for _, r := range e.guard.Snapshot() {
			if r.State == reminder.Triggered {
				triggered++
			}
		}
		if len(seen) > triggered {
			rt.Fatalf("%d deliveries for %d triggered reminders", len(seen), triggered)
		}
	})
}
