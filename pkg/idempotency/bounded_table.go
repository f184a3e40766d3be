// Package idempotency tracks per-producer sequence numbers so that a
// retried produce request can be recognized and answered with the
// offset of its original (already-durable) append instead of writing
// a duplicate record.
package idempotency

import (
	"container/list"
	"sync"
	"time"
)

// Key identifies one producer's stream within one partition.
type Key struct {
	ProducerID string
	Topic      string
	Partition  int32
}

type entryValue struct {
	key          Key
	lastSequence int64
	lastOffset   int64
	updatedAt    time.Time
}

// BoundedTable is a count-bounded, TTL-aware LRU of producer state.
// All operations are serialized by a single mutex: the table performs
// only in-memory map and intrusive-list work per request, so it is
// never a throughput bottleneck.
//
// The LRU is an intrusive doubly-linked list (container/list) plus a
// map from Key to *list.Element, giving O(1) touch/evict instead of
// the linear-scan remove a plain slice/deque would need.
type BoundedTable struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	ll         *list.List
	items      map[Key]*list.Element
	now        func() time.Time
}

// New creates a table bounded to maxEntries keys, evicting entries
// idle for longer than ttl.
func New(maxEntries int, ttl time.Duration) *BoundedTable {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &BoundedTable{
		maxEntries: maxEntries,
		ttl:        ttl,
		ll:         list.New(),
		items:      make(map[Key]*list.Element),
		now:        time.Now,
	}
}

// IsValidSequence reports whether sequence is an acceptable next
// sequence for key: 0 for an unseen key, or strictly greater than the
// stored last_sequence otherwise.
func (t *BoundedTable) IsValidSequence(key Key, sequence int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanupExpiredLocked()

	elem, ok := t.items[key]
	if !ok {
		return sequence == 0
	}
	return sequence > elem.Value.(*entryValue).lastSequence
}

// UpdateSequence records sequence/offset for key, evicting the
// least-recently-used entry first if the table is at capacity.
func (t *BoundedTable) UpdateSequence(key Key, sequence, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanupExpiredLocked()

	if elem, ok := t.items[key]; ok {
		v := elem.Value.(*entryValue)
		v.lastSequence = sequence
		v.lastOffset = offset
		v.updatedAt = t.now()
		t.ll.MoveToFront(elem)
		return
	}

	for len(t.items) >= t.maxEntries {
		t.evictOldestLocked()
	}

	v := &entryValue{key: key, lastSequence: sequence, lastOffset: offset, updatedAt: t.now()}
	elem := t.ll.PushFront(v)
	t.items[key] = elem
}

// GetLastSequence returns the stored last_sequence for key, or -1 if absent.
func (t *BoundedTable) GetLastSequence(key Key) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elem, ok := t.items[key]; ok {
		return elem.Value.(*entryValue).lastSequence
	}
	return -1
}

// GetLastOffset returns the stored last_offset for key, or -1 if absent.
func (t *BoundedTable) GetLastOffset(key Key) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elem, ok := t.items[key]; ok {
		return elem.Value.(*entryValue).lastOffset
	}
	return -1
}

// RemoveProducer drops every entry for producerID, across all topics/partitions.
func (t *BoundedTable) RemoveProducer(producerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, elem := range t.items {
		if key.ProducerID == producerID {
			t.ll.Remove(elem)
			delete(t.items, key)
		}
	}
}

// RemoveTopic drops every entry scoped to topic, so a deleted-and-
// recreated topic doesn't inherit a stale idempotency key.
func (t *BoundedTable) RemoveTopic(topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, elem := range t.items {
		if key.Topic == topic {
			t.ll.Remove(elem)
			delete(t.items, key)
		}
	}
}

// Size returns the current entry count.
func (t *BoundedTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Clear removes every entry.
func (t *BoundedTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ll.Init()
	t.items = make(map[Key]*list.Element)
}

// CleanupExpired removes every entry idle for longer than the table's TTL.
func (t *BoundedTable) CleanupExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanupExpiredLocked()
}

func (t *BoundedTable) cleanupExpiredLocked() {
	if t.ttl <= 0 {
		return
	}
	now := t.now()
	for elem := t.ll.Back(); elem != nil; {
		v := elem.Value.(*entryValue)
		prev := elem.Prev()
		if now.Sub(v.updatedAt) > t.ttl {
			t.ll.Remove(elem)
			delete(t.items, v.key)
		}
		elem = prev
	}
}

func (t *BoundedTable) evictOldestLocked() {
	back := t.ll.Back()
	if back == nil {
		return
	}
	v := back.Value.(*entryValue)
	t.ll.Remove(back)
	delete(t.items, v.key)
}
