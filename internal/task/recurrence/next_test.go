package recurrence

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestNextCalendarEdges(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   time.Time
		p    Pattern
		want time.Time
	}{
		{name: "daily", in: date(2025, 12, 31, 9, 30), p: Daily, want: date(2026, 1, 1, 9, 30)},
		{name: "weekly", in: date(2025, 12, 13, 17, 0), p: Weekly, want: date(2025, 12, 20, 17, 0)},
		{name: "biweekly across month", in: date(2025, 1, 25, 8, 0), p: Biweekly, want: date(2025, 2, 8, 8, 0)},
		{name: "monthly jan31 non-leap", in: date(2025, 1, 31, 0, 0), p: Monthly, want: date(2025, 2, 28, 0, 0)},
		{name: "monthly jan31 leap", in: date(2024, 1, 31, 0, 0), p: Monthly, want: date(2024, 2, 29, 0, 0)},
		{name: "monthly mar31", in: date(2025, 3, 31, 12, 0), p: Monthly, want: date(2025, 4, 30, 12, 0)},
		{name: "monthly dec to jan", in: date(2025, 12, 15, 7, 45), p: Monthly, want: date(2026, 1, 15, 7, 45)},
		{name: "monthly feb28 stays 28", in: date(2025, 2, 28, 0, 0), p: Monthly, want: date(2025, 3, 28, 0, 0)},
		{name: "yearly feb29", in: date(2024, 2, 29, 10, 0), p: Yearly, want: date(2025, 2, 28, 10, 0)},
		{name: "yearly plain", in: date(2025, 6, 1, 10, 0), p: Yearly, want: date(2026, 6, 1, 10, 0)},
		{name: "none unchanged", in: date(2025, 6, 1, 10, 0), p: None, want: date(2025, 6, 1, 10, 0)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.in, tt.p); !got.Equal(tt.want) {
				t.Fatalf("Next(%v, %s) = %v, want %v", tt.in, tt.p, got, tt.want)
			}
		})
	}
}

func TestNextJan31ToMar31(t *testing.T) {
	t.Parallel()
	// Two months from Jan 31 measured from the original date lands on Mar 31;
	// chaining through Feb clamps permanently to 28.
	if got := addMonths(date(2025, 1, 31, 0, 0), 2); !got.Equal(date(2025, 3, 31, 0, 0)) {
		t.Fatalf("addMonths(+2) = %v", got)
	}
	occ := Occurrences(date(2025, 1, 31, 0, 0), Monthly, 3)
	want := []time.Time{date(2025, 2, 28, 0, 0), date(2025, 3, 28, 0, 0), date(2025, 4, 28, 0, 0)}
	for i := range want {
		if !occ[i].Equal(want[i]) {
			t.Fatalf("occurrence %d = %v, want %v", i, occ[i], want[i])
		}
	}
}

func TestNextKeepsWallClockAcrossDST(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// DST starts 2025-03-09 in New York; the wall clock must stay at 09:00.
	in := time.Date(2025, 3, 8, 9, 0, 0, 0, ny)
	got := Next(in, Daily)
	if h, m, _ := got.Clock(); h != 9 || m != 0 || got.Day() != 9 {
		t.Fatalf("Next across DST = %v", got)
	}
	if got.Sub(in) != 23*time.Hour {
		t.Fatalf("elapsed = %v, want 23h (calendar day, not 24h)", got.Sub(in))
	}
	if got.Location() != ny {
		t.Fatalf("location changed to %v", got.Location())
	}
}

func TestParsePattern(t *testing.T) {
	t.Parallel()
	for _, p := range []Pattern{None, Daily, Weekly, Biweekly, Monthly, Yearly} {
		got, err := ParsePattern(p.String())
		if err != nil || got != p {
			t.Fatalf("ParsePattern(%q) = %v, %v", p.String(), got, err)
		}
	}
	if got, err := ParsePattern(" Weekly "); err != nil || got != Weekly {
		t.Fatalf("case-insensitive parse failed: %v, %v", got, err)
	}
	if got, err := ParsePattern(""); err != nil || got != None {
		t.Fatalf("empty should be None: %v, %v", got, err)
	}
	if _, err := ParsePattern("fortnightly"); err == nil {
		t.Fatal("expected error for unknown pattern")
	}
}

func TestPatternText(t *testing.T) {
	t.Parallel()
	var p Pattern
	if err := p.UnmarshalText([]byte("monthly")); err != nil || p != Monthly {
		t.Fatalf("UnmarshalText = %v, %v", p, err)
	}
	b, err := Yearly.MarshalText()
	if err != nil || string(b) != "yearly" {
		t.Fatalf("MarshalText = %q, %v", b, err)
	}
	if _, err := Pattern(42).MarshalText(); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
	if Pattern(42).Recurring() || None.Recurring() || !Daily.Recurring() {
		t.Fatal("Recurring() mismatch")
	}
}

func TestDaysIn(t *testing.T) {
	t.Parallel()
	cases := []struct {
		y    int
		m    time.Month
		want int
	}{
		{2023, time.February, 28},
		{2024, time.February, 29},
		{1900, time.February, 28},
		{2000, time.February, 29},
		{2025, time.April, 30},
		{2025, time.December, 31},
	}
	for _, c := range cases {
		if got := DaysIn(c.y, c.m); got != c.want {
			t.Fatalf("DaysIn(%d, %s) = %d, want %d", c.y, c.m, got, c.want)
		}
	}
}
