// Package recurrence computes the next occurrence of a recurring task.
//
// Arithmetic is calendar based: days are added through time.Date so the wall
// clock survives DST transitions in the value's location, and month/year
// steps clamp down to the last valid day of the target month instead of
// rolling over (Jan 31 + 1 month = Feb 28/29, never Mar 3).
package recurrence

import (
	"fmt"
	"strings"
)

// Pattern names how a completed task's due date advances.
type Pattern int

const (
	None Pattern = iota
	Daily
	Weekly
	Biweekly
	Monthly
	Yearly
)

var names = [...]string{
	None:     "none",
	Daily:    "daily",
	Weekly:   "weekly",
	Biweekly: "biweekly",
	Monthly:  "monthly",
	Yearly:   "yearly",
}

func (p Pattern) String() string {
	if p < None || int(p) >= len(names) {
		return fmt.Sprintf("pattern(%d)", int(p))
	}
	return names[p]
}

// Valid reports whether p is one of the known patterns.
func (p Pattern) Valid() bool { return p >= None && int(p) < len(names) }

// Recurring reports whether completing a task with this pattern produces a
// new instance.
func (p Pattern) Recurring() bool { return p != None && p.Valid() }

// ParsePattern accepts the lowercase names above (case-insensitive).
// The empty string parses as None.
func ParsePattern(s string) (Pattern, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return None, nil
	}
	for i, n := range names {
		if n == v {
			return Pattern(i), nil
		}
	}
	return None, fmt.Errorf("unknown recurrence pattern %q (use none, daily, weekly, biweekly, monthly or yearly)", s)
}

func (p Pattern) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid recurrence pattern %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Pattern) UnmarshalText(b []byte) error {
	v, err := ParsePattern(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
