// ABOUTME: Bounded TTL tracker for message event IDs
// ABOUTME: Filters redelivered events before they reach the bridge engine

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Tracker remembers recently seen event keys so redelivered messages are
// processed at most once. Entries age out after the TTL; when the tracker
// is full the oldest entry is evicted first. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	keys   map[string]*list.Element
	order  *list.List
	ttl    time.Duration
	limit  int
	done   chan struct{}
	closed bool
}

type trackerEntry struct {
	key    string
	seenAt time.Time
}

// NewTracker creates a Tracker holding at most limit keys for ttl each.
// A background goroutine sweeps expired keys until Close is called.
func NewTracker(ttl time.Duration, limit int) *Tracker {
	t := &Tracker{
		keys:  make(map[string]*list.Element),
		order: list.New(),
		ttl:   ttl,
		limit: limit,
		done:  make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Seen atomically records the key and reports whether it was already
// present and unexpired. The check and record happen under one lock so two
// deliveries of the same event cannot both come back fresh.
func (t *Tracker) Seen(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if elem, ok := t.keys[key]; ok {
		entry := elem.Value.(*trackerEntry)
		if now.Sub(entry.seenAt) < t.ttl {
			return true
		}
		// Expired; refresh in place
		entry.seenAt = now
		t.order.MoveToBack(elem)
		return false
	}

	if t.order.Len() >= t.limit {
		oldest := t.order.Front()
		if oldest != nil {
			delete(t.keys, oldest.Value.(*trackerEntry).key)
			t.order.Remove(oldest)
		}
	}

	t.keys[key] = t.order.PushBack(&trackerEntry{key: key, seenAt: now})
	return false
}

// Len returns the number of tracked keys, including any not yet swept.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

func (t *Tracker) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-t.done:
			return
		}
	}
}

func (t *Tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for elem := t.order.Front(); elem != nil; {
		entry := elem.Value.(*trackerEntry)
		if now.Sub(entry.seenAt) < t.ttl {
			break // insertion order means everything after is fresher
		}
		next := elem.Next()
		delete(t.keys, entry.key)
		t.order.Remove(elem)
		elem = next
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
}
