package main

import (
	"encoding/json"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"duebot/internal/app"
	"duebot/internal/config"
	"duebot/internal/task/reminder"
	"duebot/internal/task/scheduler"
)

func newUpcomingCmd(g *globals) *cobra.Command {
	var (
		within time.Duration
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List overdue reminders and those firing soon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			grace, err := config.ParseDurationOrDefault("scheduler.interval", cfg.Scheduler.Interval, scheduler.DefaultInterval)
			if err != nil {
				return err
			}
			core, err := app.OpenCore(cfg, g.logger(), nil, nil)
			if err != nil {
				return err
			}
			defer core.Close()

			ctx := cmd.Context()
			if _, err := core.Tasks.Reconcile(ctx); err != nil {
				return err
			}
			// A disabled scheduler answers queries without ticking or notifying.
			sched := scheduler.New(scheduler.Config{}, core.Guard, core.Repo, nil, core.Clock, g.logger(), nil)
			now := core.Clock.Now()
			ups := sched.UpcomingReminders(within)
			for i := range ups {
				markStale(&ups[i], now, grace)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ups)
			}
			t := newTable(cmd.OutOrStdout(), table.Row{"Task", "Fire at", "When", "Due", "Message"})
			for _, r := range ups {
				when := dueLabel(r, now)
				t.AppendRow(table.Row{shortID(r.TaskID), r.FireAt.Format(timeLayout), when, r.Due.Format(timeLayout), r.Message})
			}
			t.AppendFooter(table.Row{"", "", "", "Total", len(ups)})
			t.Render()
			return nil
		},
	}
	cmd.Flags().DurationVarP(&within, "within", "w", 24*time.Hour, "look-ahead window")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// markStale flags a pending reminder more than grace past its fire time as
// overdue, as the daemon's catch-up tick would. Nothing is notified.
func markStale(r *reminder.Reminder, now time.Time, grace time.Duration) {
	if r.State == reminder.Pending && now.Sub(r.FireAt) > grace {
		r.Overdue = true
	}
}

func dueLabel(r reminder.Reminder, now time.Time) string {
	switch {
	case r.Overdue:
		return "OVERDUE"
	case !r.FireAt.After(now):
		return "DUE"
	}
	return fmtIn(r.FireAt.Sub(now))
}
