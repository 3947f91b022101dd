// Package recurrence decides which dates a recurring rule fires on.
package recurrence

import (
	"fmt"
	"sort"

	"taskboard/internal/dates"
)

type Type string

const (
	Daily        Type = "daily"
	Weekdays     Type = "weekdays"
	WeekdaysSet  Type = "weekdays_set"
	FirstOfMonth Type = "first_of_month"
	LastOfMonth  Type = "last_of_month"
	DayOfMonth   Type = "day_of_month"
)

// Rule is the tagged recurrence descriptor stored on a template.
// Weekday numbers run 0 (Sunday) to 6 (Saturday).
type Rule struct {
	Type       Type  `json:"type" yaml:"type"`
	DaysOfWeek []int `json:"daysOfWeek,omitempty" yaml:"days_of_week,omitempty"`
	DayOfMonth int   `json:"dayOfMonth,omitempty" yaml:"day_of_month,omitempty"`
}

// Known reports whether t is one of the supported rule types.
func Known(t Type) bool {
	switch t {
	case Daily, Weekdays, WeekdaysSet, FirstOfMonth, LastOfMonth, DayOfMonth:
		return true
	}
	return false
}

// Applies reports whether rule fires on day. It never fails: a missing
// or unknown type, or a malformed day, simply does not apply.
func Applies(rule *Rule, day string) bool {
	if rule == nil || rule.Type == "" || !dates.Valid(day) {
		return false
	}
	wd := dates.Weekday(day)
	dom := dates.DayOfMonth(day)
	switch rule.Type {
	case Daily:
		return true
	case Weekdays:
		return wd >= 1 && wd <= 5
	case WeekdaysSet:
		for _, d := range rule.DaysOfWeek {
			if d == wd {
				return true
			}
		}
		return false
	case FirstOfMonth:
		return dom == 1
	case LastOfMonth:
		return dom == dates.LastDayOfMonth(day)
	case DayOfMonth:
		// 31 in a 30-day month never matches; the day is not clamped.
		return dom == rule.DayOfMonth
	default:
		return false
	}
}

// Validate checks a rule before it is persisted on a template.
func (r Rule) Validate() error {
	if !Known(r.Type) {
		return fmt.Errorf("invalid recurrence type %q", r.Type)
	}
	switch r.Type {
	case WeekdaysSet:
		for _, d := range r.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("invalid weekday %d: must be 0-6", d)
			}
		}
	case DayOfMonth:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("invalid day of month %d: must be 1-31", r.DayOfMonth)
		}
	}
	return nil
}

// Normalize drops fields that do not belong to the rule's type.
func (r Rule) Normalize() Rule {
	out := Rule{Type: r.Type}
	switch r.Type {
	case WeekdaysSet:
		seen := map[int]bool{}
		for _, d := range r.DaysOfWeek {
			if !seen[d] {
				seen[d] = true
				out.DaysOfWeek = append(out.DaysOfWeek, d)
			}
		}
		sort.Ints(out.DaysOfWeek)
	case DayOfMonth:
		out.DayOfMonth = r.DayOfMonth
	}
	return out
}

// Active reports whether day falls inside a template window. An empty end is open.
func Active(startFrom, end, day string) bool {
	if startFrom != "" && day < startFrom {
		return false
	}
	if end != "" && day > end {
		return false
	}
	return true
}
