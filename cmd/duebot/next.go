package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"duebot/internal/task/recurrence"
)

func newNextCmd() *cobra.Command {
	var (
		due     string
		pattern string
		tz      string
		count   int
	)
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Preview the due dates a recurrence pattern produces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc := time.Local
			if tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return fmt.Errorf("--tz: %w", err)
				}
				loc = l
			}
			start, err := parseWhen(due, loc)
			if err != nil {
				return err
			}
			p, err := recurrence.ParsePattern(pattern)
			if err != nil {
				return err
			}
			if !p.Recurring() {
				return fmt.Errorf("pattern %q does not recur", pattern)
			}
			if count <= 0 {
				return fmt.Errorf("-n must be positive")
			}

			t := newTable(cmd.OutOrStdout(), table.Row{"#", "Due", "Gap"})
			prev := start
			t.AppendRow(table.Row{0, start.Format(timeLayout), "-"})
			for i, at := range recurrence.Occurrences(start, p, count) {
				t.AppendRow(table.Row{i + 1, at.Format(timeLayout), at.Sub(prev).String()})
				prev = at
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "first due date (RFC3339 or 2006-01-02 15:04)")
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "monthly", "daily, weekly, biweekly, monthly or yearly")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA time zone for --due without offset")
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of occurrences")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}
