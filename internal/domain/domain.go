package domain

import (
	"time"

	"taskboard/internal/recurrence"
)

// Unassigned is the bucket for tasks nobody owns yet.
const Unassigned = "UNASSIGNED"

// TimeLayout is fixed width so timestamps sort lexicographically.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

type Task struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Assignee        string  `json:"assignee"`
	WorkDate        string  `json:"work_date" format:"date"`
	DueDate         *string `json:"due_date,omitempty" format:"date"`
	Priority        *int    `json:"priority,omitempty"`
	Completed       bool    `json:"completed"`
	Notes           string  `json:"notes"`
	RecurTemplateID *string `json:"recur_template_id,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type Template struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Assignee  string          `json:"assignee"`
	Rule      recurrence.Rule `json:"recur_rule"`
	StartFrom string          `json:"start_from" format:"date"`
	RecurEnd  *string         `json:"recur_end,omitempty" format:"date"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// ActiveOn reports whether day falls inside the template's window.
func (t Template) ActiveOn(day string) bool {
	end := ""
	if t.RecurEnd != nil {
		end = *t.RecurEnd
	}
	return recurrence.Active(t.StartFrom, end, day)
}

// Change is one row of the change feed.
type Change struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind" enum:"task,template"`
	EntityID   string `json:"entity_id"`
	WorkDate   string `json:"work_date,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// Column is one assignee's bucket for a day.
type Column struct {
	Assignee string `json:"assignee"`
	Title    string `json:"title"`
	Tasks    []Task `json:"tasks"`
	Hidden   int    `json:"hidden_completed,omitempty"`
}

type Board struct {
	Date    string   `json:"date" format:"date"`
	Weekday string   `json:"weekday"`
	Columns []Column `json:"columns"`
}
