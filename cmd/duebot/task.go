package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"duebot/internal/task"
	"duebot/internal/task/recurrence"
)

func newTaskCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks in the configured store",
	}
	cmd.AddCommand(
		newTaskAddCmd(g),
		newTaskListCmd(g),
		newTaskCompleteCmd(g),
		newTaskDeleteCmd(g),
		newTaskAuditCmd(g),
	)
	return cmd
}

func newTaskAddCmd(g *globals) *cobra.Command {
	var (
		title, desc, due, pattern, priority string
		lead                                time.Duration
		tags                                []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := g.openCore()
			if err != nil {
				return err
			}
			defer core.Close()

			f := task.Fields{
				Title:       title,
				Description: desc,
				Priority:    task.Priority(strings.ToLower(strings.TrimSpace(priority))),
				Tags:        tags,
			}
			if due != "" {
				at, err := parseWhen(due, core.Loc)
				if err != nil {
					return err
				}
				f.Due = &at
			}
			if cmd.Flags().Changed("lead") {
				f.ReminderLead = &lead
			}
			if f.Recurrence, err = recurrence.ParsePattern(pattern); err != nil {
				return err
			}

			t, err := core.Tasks.Add(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %q\n", t.ID, t.Title)
			if at, ok := t.FireAt(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "reminder at %s\n", at.Format(timeLayout))
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&title, "title", "t", "", "task title")
	fl.StringVar(&desc, "description", "", "longer description")
	fl.StringVarP(&due, "due", "d", "", "due date (RFC3339 or 2006-01-02 15:04 in the configured zone)")
	fl.DurationVarP(&lead, "lead", "l", 0, "remind this long before due; omit for no reminder")
	fl.StringVarP(&pattern, "pattern", "p", "none", "recurrence: none, daily, weekly, biweekly, monthly, yearly")
	fl.StringVar(&priority, "priority", "", "low, medium, high or urgent")
	fl.StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTaskListCmd(g *globals) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks ordered by due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := g.openCore()
			if err != nil {
				return err
			}
			defer core.Close()

			ts, err := core.Tasks.List(cmd.Context(), task.Filter{IncludeComplete: all})
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout(), table.Row{"ID", "Title", "Due", "Lead", "Repeat", "Priority", "Tags", "Status"})
			for _, it := range ts {
				t.AppendRow(table.Row{
					shortID(it.ID), it.Title, fmtTime(it.Due), fmtLead(it.ReminderLead),
					it.Recurrence.String(), string(it.Priority), strings.Join(it.Tags, ","), string(it.Status),
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed tasks")
	return cmd
}

func newTaskCompleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a task; recurring tasks get their next instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := g.openCore()
			if err != nil {
				return err
			}
			defer core.Close()

			ctx := cmd.Context()
			ts, err := core.Tasks.List(ctx, task.Filter{IncludeComplete: true})
			if err != nil {
				return err
			}
			id, err := resolveID(ts, args[0])
			if err != nil {
				return err
			}
			done, next, err := core.Tasks.Complete(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "completed %s %q\n", done.ID, done.Title)
			if next != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "next %s due %s\n", next.ID, fmtTime(next.Due))
			}
			return nil
		},
	}
}

func newTaskDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task and cancel its reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := g.openCore()
			if err != nil {
				return err
			}
			defer core.Close()

			ctx := cmd.Context()
			ts, err := core.Tasks.List(ctx, task.Filter{IncludeComplete: true})
			if err != nil {
				return err
			}
			id, err := resolveID(ts, args[0])
			if err != nil {
				return err
			}
			if err := core.Tasks.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			return nil
		},
	}
}

func newTaskAuditCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the task and reminder audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := g.openCore()
			if err != nil {
				return err
			}
			defer core.Close()

			entries, err := core.Repo.Audit(cmd.Context(), limit)
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout(), table.Row{"At", "Action", "Task", "Related", "Detail"})
			for _, e := range entries {
				t.AppendRow(table.Row{e.At.In(core.Loc).Format(timeLayout), e.Action, shortID(e.TaskID), shortID(e.RelatedID), e.Detail})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "newest entries to show (0 for all)")
	return cmd
}
