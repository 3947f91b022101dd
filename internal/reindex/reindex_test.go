package reindex

import (
	"fmt"
	"testing"
)

func p(n int) *int { return &n }

func bucket(prios ...int) []Item {
	items := make([]Item, len(prios))
	for i, pr := range prios {
		items[i] = Item{ID: fmt.Sprintf("t%d", i), Priority: p(pr), CreatedAt: fmt.Sprintf("2024-01-01T00:00:%02d", i)}
	}
	return items
}

// ranks returns the final rank of each id after applying changes.
func ranks(items []Item, changes []Change) map[string]int {
	out := map[string]int{}
	for _, it := range apply(items, changes) {
		if it.Priority != nil {
			out[it.ID] = *it.Priority
		}
	}
	return out
}

func apply(items []Item, changes []Change) []Item {
	byID := make(map[string]int, len(changes))
	for _, c := range changes {
		byID[c.ID] = c.Priority
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it
		if p, ok := byID[it.ID]; ok {
			p := p
			out[i].Priority = &p
		}
	}
	return out
}

func assertContiguous(t *testing.T, r map[string]int) {
	t.Helper()
	seen := map[int]bool{}
	for id, v := range r {
		if v < 1 || v > len(r) || seen[v] {
			t.Fatalf("rank %d for %s breaks 1..%d: %v", v, id, len(r), r)
		}
		seen[v] = true
	}
}

func TestShiftUpSwapsNeighbours(t *testing.T) {
	items := []Item{
		{ID: "A", Priority: p(2), CreatedAt: "1"},
		{ID: "B", Priority: p(1), CreatedAt: "2"},
	}
	changes, err := Shift(items, "A", Up)
	if err != nil {
		t.Fatal(err)
	}
	r := ranks(items, changes)
	if r["A"] != 1 || r["B"] != 2 {
		t.Fatalf("unexpected ranks %v", r)
	}
}

func TestShiftAtBoundaryStillNormalizes(t *testing.T) {
	items := bucket(1, 5, 5)
	changes, err := Shift(items, "t0", Up)
	if err != nil {
		t.Fatal(err)
	}
	r := ranks(items, changes)
	assertContiguous(t, r)
	if r["t0"] != 1 || r["t1"] != 2 || r["t2"] != 3 {
		t.Fatalf("unexpected ranks %v", r)
	}
	changes, err = Shift(items, "t2", Down)
	if err != nil {
		t.Fatal(err)
	}
	if r := ranks(items, changes); r["t2"] != 3 {
		t.Fatalf("down at bottom moved task: %v", r)
	}
}

func TestMoveToClampsPosition(t *testing.T) {
	items := bucket(1, 2, 3, 4)
	changes, err := MoveTo(items, "t3", 1)
	if err != nil {
		t.Fatal(err)
	}
	r := ranks(items, changes)
	assertContiguous(t, r)
	if r["t3"] != 1 || r["t0"] != 2 {
		t.Fatalf("move to front: %v", r)
	}

	changes, _ = MoveTo(items, "t0", 99)
	if r := ranks(items, changes); r["t0"] != 4 {
		t.Fatalf("move beyond end should clamp to last: %v", r)
	}
	changes, _ = MoveTo(items, "t2", -3)
	if r := ranks(items, changes); r["t2"] != 1 || r["t0"] != 2 {
		t.Fatalf("negative position should clamp to first: %v", r)
	}
	changes, _ = MoveTo(items, "t2", 0)
	if r := ranks(items, changes); r["t2"] != 4 {
		t.Fatalf("unset position should place last: %v", r)
	}
	changes, _ = MoveTo(items, "t0", 3)
	if r := ranks(items, changes); r["t0"] != 3 || r["t1"] != 1 || r["t2"] != 2 {
		t.Fatalf("move into middle: %v", r)
	}
}

func TestOnlyChangedRanksAreEmitted(t *testing.T) {
	items := bucket(1, 2, 3)
	if changes := Normalize(items); len(changes) != 0 {
		t.Fatalf("expected no changes, got %v", changes)
	}
	changes, _ := Shift(items, "t2", Up)
	if len(changes) != 2 {
		t.Fatalf("expected two changes, got %v", changes)
	}
}

func TestNormalizeFixesGapsDuplicatesAndSentinel(t *testing.T) {
	items := bucket(4, 4, Sentinel, 9)
	items = append(items, Item{ID: "nil", CreatedAt: "0"})
	r := ranks(items, Normalize(items))
	assertContiguous(t, r)
	if r["t2"] != 4 || r["nil"] != 5 {
		t.Fatalf("sentinel and absent must sort last: %v", r)
	}
	if r["t0"] != 1 || r["t1"] != 2 {
		t.Fatalf("ties must break on created_at: %v", r)
	}
}

func TestUnknownTask(t *testing.T) {
	if _, err := Shift(bucket(1), "zzz", Up); err != ErrNotInBucket {
		t.Fatalf("expected ErrNotInBucket, got %v", err)
	}
	if _, err := MoveTo(bucket(1), "zzz", 1); err != ErrNotInBucket {
		t.Fatalf("expected ErrNotInBucket, got %v", err)
	}
	if _, err := Shift(bucket(1), "t0", "sideways"); err == nil {
		t.Fatalf("expected direction error")
	}
}

func TestEveryOperationKeepsBucketContiguous(t *testing.T) {
	items := bucket(3, 3, 7, 1, Sentinel, 2)
	for _, it := range items {
		for _, dir := range []Direction{Up, Down} {
			changes, err := Shift(items, it.ID, dir)
			if err != nil {
				t.Fatal(err)
			}
			assertContiguous(t, ranks(items, changes))
		}
		for n := -1; n <= len(items)+1; n++ {
			changes, err := MoveTo(items, it.ID, n)
			if err != nil {
				t.Fatal(err)
			}
			assertContiguous(t, ranks(items, changes))
		}
	}
	if Append(items) != len(items)+1 {
		t.Fatalf("append rank wrong")
	}
}
