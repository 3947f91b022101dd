package audit

import (
	"fmt"
	"sync"
	"testing"
)

func TestLogIsCappedNewestFirst(t *testing.T) {
	l := New(0)
	for i := 0; i < DefaultCapacity+25; i++ {
		l.Record("create", map[string]any{"n": i})
	}
	if l.Len() != DefaultCapacity {
		t.Fatalf("len %d", l.Len())
	}
	entries := l.Entries(2)
	if len(entries) != 2 {
		t.Fatalf("limit ignored: %d", len(entries))
	}
	if entries[0].Details["n"] != DefaultCapacity+24 || entries[1].Details["n"] != DefaultCapacity+23 {
		t.Fatalf("not newest first: %v", entries)
	}
	all := l.Entries(0)
	if all[len(all)-1].Details["n"] != 25 {
		t.Fatalf("oldest kept should be 25, got %v", all[len(all)-1].Details["n"])
	}
}

func TestNilLogIsNoop(t *testing.T) {
	var l *Log
	l.Record("x", nil)
	if l.Entries(10) != nil || l.Len() != 0 {
		t.Fatalf("nil log should be empty")
	}
}

func TestConcurrentRecord(t *testing.T) {
	l := New(50)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Record(fmt.Sprintf("a%d", i), nil)
				_ = l.Entries(5)
			}
		}(i)
	}
	wg.Wait()
	if l.Len() != 50 {
		t.Fatalf("len %d", l.Len())
	}
}
