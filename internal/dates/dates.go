// Package dates works on calendar days encoded as YYYY-MM-DD strings.
// All arithmetic is anchored to UTC so a day never shifts with the host timezone.
package dates

import (
	"fmt"
	"time"
)

// Layout is the canonical day format.
const Layout = "2006-01-02"

// Parse returns midnight UTC of the given day.
func Parse(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// Format renders t's UTC calendar day.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Valid reports whether s is a well-formed calendar day.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// AddDays shifts s by n days. Malformed input is returned unchanged.
func AddDays(s string, n int) string {
	t, err := Parse(s)
	if err != nil {
		return s
	}
	return Format(t.AddDate(0, 0, n))
}

// Weekday returns 0 for Sunday through 6 for Saturday, or -1 for malformed input.
func Weekday(s string) int {
	t, err := Parse(s)
	if err != nil {
		return -1
	}
	return int(t.Weekday())
}

func IsWeekend(s string) bool {
	wd := Weekday(s)
	return wd == 0 || wd == 6
}

// DayOfMonth returns the day component of s, or 0 for malformed input.
func DayOfMonth(s string) int {
	t, err := Parse(s)
	if err != nil {
		return 0
	}
	return t.Day()
}

// LastDayOfMonth returns the length of the month containing s.
func LastDayOfMonth(s string) int {
	t, err := Parse(s)
	if err != nil {
		return 0
	}
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}

// Today returns the calendar day of now as seen in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(Layout)
}

// Max returns the later of two days. Canonical strings compare lexically.
func Max(a, b string) string {
	if a > b {
		return a
	}
	return b
}
