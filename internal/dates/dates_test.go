package dates

import (
	"testing"
	"time"
)

func TestAddDaysRoundTrip(t *testing.T) {
	days := []string{"2024-01-01", "2024-02-28", "2024-02-29", "2023-12-31", "2025-03-01"}
	for _, d := range days {
		for _, n := range []int{-400, -31, -1, 0, 1, 29, 365} {
			if got := AddDays(AddDays(d, n), -n); got != d {
				t.Fatalf("round trip %s %+d: got %s", d, n, got)
			}
		}
	}
}

func TestAddDaysCrossesMonth(t *testing.T) {
	if got := AddDays("2024-02-28", 1); got != "2024-02-29" {
		t.Fatalf("leap day: %s", got)
	}
	if got := AddDays("2023-02-28", 1); got != "2023-03-01" {
		t.Fatalf("non-leap: %s", got)
	}
	if got := AddDays("2024-01-01", -1); got != "2023-12-31" {
		t.Fatalf("year back: %s", got)
	}
}

func TestLastDayOfMonth(t *testing.T) {
	cases := map[string]int{
		"2024-02-10": 29,
		"2023-02-10": 28,
		"2024-04-01": 30,
		"2024-12-31": 31,
		"2100-02-01": 28,
		"2000-02-01": 29,
	}
	for in, want := range cases {
		if got := LastDayOfMonth(in); got != want {
			t.Fatalf("%s: got %d want %d", in, got, want)
		}
	}
}

func TestWeekday(t *testing.T) {
	// 2024-01-07 was a Sunday.
	for i := 0; i < 7; i++ {
		d := AddDays("2024-01-07", i)
		if got := Weekday(d); got != i {
			t.Fatalf("%s: got %d want %d", d, got, i)
		}
	}
	if !IsWeekend("2024-01-06") || IsWeekend("2024-01-08") {
		t.Fatalf("weekend detection wrong")
	}
	if Weekday("nope") != -1 {
		t.Fatalf("expected -1 for malformed date")
	}
}

func TestTodayUsesLocation(t *testing.T) {
	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	if got := Today(now, nil); got != "2024-03-01" {
		t.Fatalf("utc today: %s", got)
	}
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	if got := Today(now, ny); got != "2024-02-29" {
		t.Fatalf("new york today: %s", got)
	}
}

func TestMaxAndValid(t *testing.T) {
	if Max("2024-01-02", "2024-01-10") != "2024-01-10" {
		t.Fatalf("max wrong")
	}
	if Valid("2024-13-01") || Valid("") || !Valid("2024-02-29") {
		t.Fatalf("valid wrong")
	}
}
