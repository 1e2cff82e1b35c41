package core

import (
	"container/list"
	"context"
)

// DBIdempotencyChecker is the persistent fallback consulted when the
// in-memory window does not contain a key. Backed by the event log.
type DBIdempotencyChecker interface {
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// idempotencyLRU is a fixed-capacity recently-seen set. Oldest keys
// are evicted first; evicted keys fall back to the database check.
type idempotencyLRU struct {
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

func newIdempotencyLRU(capacity int) *idempotencyLRU {
	return &idempotencyLRU{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

func (l *idempotencyLRU) contains(key string) bool {
	if elem, ok := l.entries[key]; ok {
		l.order.MoveToFront(elem)
		return true
	}
	return false
}

func (l *idempotencyLRU) add(key string) {
	if elem, ok := l.entries[key]; ok {
		l.order.MoveToFront(elem)
		return
	}
	l.entries[key] = l.order.PushFront(key)
	for l.order.Len() > l.capacity {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.entries, oldest.Value.(string))
	}
}

// IdempotencyChecker answers "have we already applied this event?"
// using a two-tier lookup: a hot in-memory LRU window, then the event
// log in Postgres. The DB tier may be nil in tests or during replay.
type IdempotencyChecker struct {
	lru *idempotencyLRU
	db  DBIdempotencyChecker
}

func NewIdempotencyChecker(windowSize int, db DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru: newIdempotencyLRU(windowSize),
		db:  db,
	}
}

// IsDuplicate reports whether the key has been processed before. A DB
// error is surfaced so the engine can refuse the event rather than
// risk a double apply.
func (c *IdempotencyChecker) IsDuplicate(ctx context.Context, key string) (bool, error) {
	if c.lru.contains(key) {
		return true, nil
	}
	if c.db == nil {
		return false, nil
	}
	return c.db.Exists(ctx, key)
}

// MarkProcessed records a key after its event has been applied.
func (c *IdempotencyChecker) MarkProcessed(key string) {
	c.lru.add(key)
}

// WarmFromKeys preloads the LRU, typically with the most recent keys
// from the event log at startup.
func (c *IdempotencyChecker) WarmFromKeys(keys []string) {
	for _, key := range keys {
		c.lru.add(key)
	}
}

// Keys returns the window contents oldest first, so feeding them back
// through WarmFromKeys reproduces the recency order.
func (c *IdempotencyChecker) Keys() []string {
	keys := make([]string, 0, c.lru.order.Len())
	for elem := c.lru.order.Back(); elem != nil; elem = elem.Prev() {
		keys = append(keys, elem.Value.(string))
	}
	return keys
}
