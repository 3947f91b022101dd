// Package reindex computes contiguous 1..n priority ranks for a bucket of
// tasks sharing one assignee and one work date.
package reindex

import (
	"errors"
	"math"
	"sort"
)

// Sentinel marks a task as unranked; it sorts after every ranked task.
const Sentinel = 999

var ErrNotInBucket = errors.New("task not in bucket")

type Item struct {
	ID        string
	Priority  *int
	CreatedAt string
}

type Change struct {
	ID       string
	Priority int
}

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func rank(p *int) int {
	if p == nil {
		return math.MaxInt
	}
	return *p
}

// Less orders by priority, then creation time, then id.
func Less(a, b Item) bool {
	ra, rb := rank(a.Priority), rank(b.Priority)
	if ra != rb {
		return ra < rb
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.ID < b.ID
}

// Sorted returns a sorted copy of items.
func Sorted(items []Item) []Item {
	out := append([]Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Append returns the rank a new task receives at the end of the bucket.
func Append(items []Item) int {
	return len(items) + 1
}

// Normalize renumbers the bucket in its current sort order.
func Normalize(items []Item) []Change {
	return renumber(Sorted(items))
}

// Shift swaps the task with its neighbour and renumbers the whole bucket.
// At either boundary the order is kept but ranks are still normalized.
func Shift(items []Item, id string, dir Direction) ([]Change, error) {
	ordered := Sorted(items)
	idx := indexOf(ordered, id)
	if idx < 0 {
		return nil, ErrNotInBucket
	}
	switch dir {
	case Up:
		if idx > 0 {
			ordered[idx-1], ordered[idx] = ordered[idx], ordered[idx-1]
		}
	case Down:
		if idx < len(ordered)-1 {
			ordered[idx+1], ordered[idx] = ordered[idx], ordered[idx+1]
		}
	default:
		return nil, errors.New("invalid direction: must be up or down")
	}
	return renumber(ordered), nil
}

// MoveTo places the task at 1-based position n and renumbers the bucket.
// n == 0 means unset and places the task last; any other n is clamped to [1, count].
func MoveTo(items []Item, id string, n int) ([]Change, error) {
	ordered := Sorted(items)
	idx := indexOf(ordered, id)
	if idx < 0 {
		return nil, ErrNotInBucket
	}
	moving := ordered[idx]
	rest := append(append([]Item(nil), ordered[:idx]...), ordered[idx+1:]...)
	pos := len(rest)
	switch {
	case n < 0:
		pos = 0
	case n > 0 && n-1 < pos:
		pos = n - 1
	}
	out := make([]Item, 0, len(ordered))
	out = append(out, rest[:pos]...)
	out = append(out, moving)
	out = append(out, rest[pos:]...)
	return renumber(out), nil
}

func renumber(ordered []Item) []Change {
	var changes []Change
	for i, it := range ordered {
		want := i + 1
		if it.Priority == nil || *it.Priority != want {
			changes = append(changes, Change{ID: it.ID, Priority: want})
		}
	}
	return changes
}

func indexOf(items []Item, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
