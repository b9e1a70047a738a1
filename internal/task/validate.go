package task

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError lists every rule a task breaks.
type ValidationError struct {
	TaskID   string
	Problems []string
}

func (e *ValidationError) Error() string {
	id := e.TaskID
	if id == "" {
		id = "<new>"
	}
	return fmt.Sprintf("task %s invalid: %s", id, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Validate checks field rules and the scheduling invariants:
// a recurrence pattern or a reminder lead requires a due date, and a lead
// must be positive.
func Validate(t *Task) error {
	if t == nil {
		return &ValidationError{Problems: []string{"task is nil"}}
	}
	var problems []string

	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate task %s: %w", t.ID, err)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}
	if !t.Recurrence.Valid() {
		problems = append(problems, fmt.Sprintf("unknown recurrence pattern %d", int(t.Recurrence)))
	}
	if t.Recurrence.Recurring() && t.Due == nil {
		problems = append(problems, fmt.Sprintf("recurrence %s requires a due date", t.Recurrence))
	}
	if t.ReminderLead != nil {
		if t.Due == nil {
			problems = append(problems, "reminder lead requires a due date")
		}
		if *t.ReminderLead <= 0 {
			problems = append(problems, "reminder lead must be positive")
		}
	}
	if t.IsComplete() != (t.CompletedAt != nil) {
		problems = append(problems, "completed_at must be set exactly when status is complete")
	}

	if len(problems) > 0 {
		return &ValidationError{TaskID: t.ID, Problems: problems}
	}
	return nil
}
