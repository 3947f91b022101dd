// Package realtime fans committed board changes out to live subscribers.
//
// Delivery is best effort: a subscriber whose buffer is full misses the
// notification rather than stalling the feed. Subscribers are expected to
// refetch the day they display, not to rebuild state from payloads.
package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"taskboard/internal/domain"
)

const (
	defaultBuffer   = 16
	defaultInterval = time.Second
	defaultBatch    = 100
)

type subscriber struct {
	ch   chan domain.Change
	kind string
}

type Hub struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	next    int
	buffer  int
	dropped int64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: map[int]*subscriber{}, buffer: buffer}
}

// Subscribe returns a channel of changes for one entity kind ("" for all).
// The channel is closed when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, kind string) <-chan domain.Change {
	s := &subscriber{ch: make(chan domain.Change, h.buffer), kind: kind}
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = s
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(s.ch)
		h.mu.Unlock()
	}()
	return s.ch
}

// Publish never blocks. It reports how many subscribers received c.
func (h *Hub) Publish(c domain.Change) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for _, s := range h.subs {
		if s.kind != "" && s.kind != c.EntityKind {
			continue
		}
		select {
		case s.ch <- c:
			delivered++
		default:
			h.dropped++
		}
	}
	return delivered
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts notifications lost to full subscriber buffers.
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Source is the change log the feed tails.
type Source interface {
	EventsAfter(ctx context.Context, limit int, cursor int64, kind string) ([]domain.Change, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// Feed polls the change log and publishes new rows to a Hub.
type Feed struct {
	Source   Source
	Hub      *Hub
	Interval time.Duration
	Batch    int
	Logger   *log.Logger

	cursor int64
	primed bool
}

func (f *Feed) logger() *log.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return log.Default()
}

// Poll publishes every change after the cursor. The first call starts at
// the current end of the log, so history is not replayed.
func (f *Feed) Poll(ctx context.Context) (int, error) {
	if !f.primed {
		id, err := f.Source.LatestEventID(ctx)
		if err != nil {
			return 0, err
		}
		f.cursor = id
		f.primed = true
		return 0, nil
	}
	batch := f.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	published := 0
	for {
		changes, err := f.Source.EventsAfter(ctx, batch, f.cursor, "")
		if err != nil {
			return published, err
		}
		for _, c := range changes {
			f.Hub.Publish(c)
			f.cursor = c.ID
			published++
		}
		if len(changes) < batch {
			return published, nil
		}
	}
}

// Run polls until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	interval := f.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := f.Poll(ctx); err != nil && ctx.Err() == nil {
			f.logger().Printf("realtime: poll failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
