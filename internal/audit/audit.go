// Package audit keeps a bounded, in-memory trail of board actions.
// Entries are lost on restart.
package audit

import (
	"sync"
	"time"
)

const DefaultCapacity = 500

type Entry struct {
	Action  string         `json:"action"`
	At      string         `json:"at" format:"date-time"`
	Details map[string]any `json:"details,omitempty"`
}

type Log struct {
	mu       sync.RWMutex
	capacity int
	entries  []Entry // newest first
	now      func() time.Time
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, now: time.Now}
}

// Record prepends an entry, dropping the oldest past capacity. A nil Log is a no-op.
func (l *Log) Record(action string, details map[string]any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e := Entry{Action: action, At: l.now().UTC().Format(time.RFC3339Nano), Details: details}
	l.entries = append([]Entry{e}, l.entries...)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
}

// Entries returns up to limit entries, newest first. limit <= 0 returns all.
func (l *Log) Entries(limit int) []Entry {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	copy(out, l.entries[:n])
	return out
}

func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
