package notify

import (
	"container/list"
	"sync"
	"time"
)

type dedupEntry struct {
	key    string
	seenAt time.Time
}

// Dedup remembers which notifications were already sent. It holds at most
// capacity keys; the oldest key is evicted first and keys expire after ttl.
// Losing a key only risks sending a notification twice.
type Dedup struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	entries  map[string]*list.Element
}

// NewDedup creates a cache. A non-positive ttl disables expiry.
func NewDedup(capacity int, ttl time.Duration) *Dedup {
	if capacity < 1 {
		capacity = 1
	}
	return &Dedup{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// MarkOnce records key and reports whether it was not seen before (or had
// expired). Only the first caller for a key gets true.
func (d *Dedup) MarkOnce(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.entries[key]; ok {
		entry := el.Value.(*dedupEntry)
		if !d.expired(entry, now) {
			return false
		}
		d.remove(el)
	}

	for d.order.Len() >= d.capacity {
		d.remove(d.order.Front())
	}

	d.entries[key] = d.order.PushBack(&dedupEntry{key: key, seenAt: now})
	return true
}

// Seen reports whether key is currently held.
func (d *Dedup) Seen(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.entries[key]
	return ok && !d.expired(el.Value.(*dedupEntry), now)
}

// Sweep drops expired keys and returns how many were removed.
func (d *Dedup) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ttl <= 0 {
		return 0
	}

	removed := 0
	for el := d.order.Front(); el != nil; {
		next := el.Next()
		if d.expired(el.Value.(*dedupEntry), now) {
			d.remove(el)
			removed++
		}
		el = next
	}
	return removed
}

// Len returns the number of keys held.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

func (d *Dedup) expired(entry *dedupEntry, now time.Time) bool {
	return d.ttl > 0 && now.Sub(entry.seenAt) >= d.ttl
}

func (d *Dedup) remove(el *list.Element) {
	entry := d.order.Remove(el).(*dedupEntry)
	delete(d.entries, entry.key)
}
