package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"duebot/internal/task"
	"duebot/internal/task/reminder"
)

func writeCLIConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
scheduler:
  timezone: UTC
storage:
  driver: file
  path: ` + filepath.Join(dir, "duebot.db") + `
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	base := []string{"--config", cfgPath, "--env-file", filepath.Join(t.TempDir(), "none.env"), "--log-level", "error"}
	root.SetArgs(append(base, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTaskCommandsShareStore(t *testing.T) {
	t.Parallel()
	cfg := writeCLIConfig(t)
	due := time.Now().UTC().Add(2 * time.Hour).Format(time.RFC3339)

	out, err := execute(t, cfg, "task", "add", "--title", "Pay rent", "--due", due, "--lead", "3h", "--pattern", "monthly", "--tag", "home")
	if err != nil {
		t.Fatalf("task add: %v", err)
	}
	if !strings.Contains(out, `"Pay rent"`) || !strings.Contains(out, "reminder at") {
		t.Fatalf("add output = %q", out)
	}
	id := strings.Fields(out)[1]

	out, err = execute(t, cfg, "task", "list")
	if err != nil {
		t.Fatalf("task list: %v", err)
	}
	if !strings.Contains(out, "Pay rent") || !strings.Contains(out, "monthly") {
		t.Fatalf("list output = %q", out)
	}

	// The fire time passed an hour ago, well beyond one tick interval.
	out, err = execute(t, cfg, "upcoming", "--json")
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	var ups []struct {
		TaskID  string `json:"task_id"`
		Overdue bool   `json:"overdue"`
	}
	if err := json.Unmarshal([]byte(out), &ups); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(ups) != 1 || ups[0].TaskID != id || !ups[0].Overdue {
		t.Fatalf("upcoming = %+v", ups)
	}

	out, err = execute(t, cfg, "task", "complete", id[:8])
	if err != nil {
		t.Fatalf("task complete: %v", err)
	}
	if !strings.Contains(out, "completed "+id) || !strings.Contains(out, "next ") {
		t.Fatalf("complete output = %q", out)
	}

	out, err = execute(t, cfg, "task", "list", "--all")
	if err != nil {
		t.Fatalf("task list --all: %v", err)
	}
	if strings.Count(out, "Pay rent") != 2 {
		t.Fatalf("list --all output = %q", out)
	}

	out, err = execute(t, cfg, "task", "audit", "-n", "0")
	if err != nil {
		t.Fatalf("task audit: %v", err)
	}
	if !strings.Contains(out, "task.completed") {
		t.Fatalf("audit output = %q", out)
	}

	if _, err := execute(t, cfg, "task", "delete", "ffffffff"); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("delete missing err = %v", err)
	}
}

func TestTaskAddRejectsBadInput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		args []string
	}{
		{"missing title", []string{"task", "add"}},
		{"bad due", []string{"task", "add", "-t", "x", "--due", "tomorrow"}},
		{"bad pattern", []string{"task", "add", "-t", "x", "--pattern", "hourly"}},
		{"recurring without due", []string{"task", "add", "-t", "x", "--pattern", "daily"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := execute(t, writeCLIConfig(t), tt.args...); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNextClampsMonthEnd(t *testing.T) {
	t.Parallel()
	out, err := execute(t, "unused.yaml", "next", "--due", "2024-01-31 09:00", "--tz", "UTC", "-n", "2")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	for _, want := range []string{"2024-02-29 09:00", "2024-03-29 09:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
}

func TestParseWhen(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*3600)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-01T10:00:00Z", time.Date(2025, 3, 1, 17, 0, 0, 0, loc)},
		{"2025-03-01 10:00", time.Date(2025, 3, 1, 10, 0, 0, 0, loc)},
		{"2025-03-01T10:00", time.Date(2025, 3, 1, 10, 0, 0, 0, loc)},
		{"2025-03-01", time.Date(2025, 3, 1, 0, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		got, err := parseWhen(tt.in, loc)
		if err != nil || !got.Equal(tt.want) || got.Location() != loc {
			t.Errorf("parseWhen(%q) = %v, %v", tt.in, got, err)
		}
	}
	if _, err := parseWhen("next friday", loc); err == nil {
		t.Errorf("expected error")
	}
}

func TestResolveID(t *testing.T) {
	t.Parallel()
	ts := []*task.Task{{ID: "abc123"}, {ID: "abd456"}}
	if id, err := resolveID(ts, "abc"); err != nil || id != "abc123" {
		t.Fatalf("resolveID = %q, %v", id, err)
	}
	if _, err := resolveID(ts, "ab"); err == nil {
		t.Fatalf("ambiguous prefix accepted")
	}
	if _, err := resolveID(ts, "zz"); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestDueLabel(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 12, 10, 14, 5, 0, 0, time.UTC)
	tests := []struct {
		name   string
		fireAt time.Time
		want   string
	}{
		{"future", now.Add(90 * time.Minute), "in 1h30m"},
		{"just due", now.Add(-30 * time.Second), "DUE"},
		{"stale", now.Add(-65 * time.Minute), "OVERDUE"},
	}
	for _, tt := range tests {
		r := reminder.Reminder{FireAt: tt.fireAt, State: reminder.Pending}
		markStale(&r, now, time.Minute)
		if got := dueLabel(r, now); got != tt.want {
			t.Errorf("%s: dueLabel = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFmtIn(t *testing.T) {
	t.Parallel()
	tests := map[time.Duration]string{
		3*time.Hour + 20*time.Minute: "in 3h20m",
		-5 * time.Minute:             "5m ago",
		10 * time.Second:             "in 0m",
	}
	for d, want := range tests {
		if got := fmtIn(d); got != want {
			t.Errorf("fmtIn(%v) = %q, want %q", d, got, want)
		}
	}
}
