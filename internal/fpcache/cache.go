// Package fpcache is the bounded, TTL'd, single-flight-coalesced cache
// keyed by request fingerprint described in spec.md §4.5.
package fpcache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	key       string
	value     any
	expiresAt time.Time
}

// Cache is a bounded LRU with absolute per-entry TTL and single-flight
// coalescing of concurrent misses for the same key.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	group    singleflight.Group

	hits     uint64
	misses   uint64
	inFlight int
}

// New builds a Cache with the given capacity and TTL.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// set inserts or refreshes a value for key, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = value
		el.Value.(*entry).expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)})
	c.items[key] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
		}
	}
}

// GetOrCompute returns the cached value for key if present, else computes it
// via compute. Concurrent callers for the same key are coalesced: only one
// invokes compute, and all receive its result. A compute failure is never
// cached (no negative caching) — every caller during that flight shares the
// same error, but the next call retries compute from scratch.
//
// The singleflight call is started with DoChan rather than Do so that each
// caller can select on its own ctx, not just the leader's: whichever caller
// happens to start the shared compute is the one whose ctx it runs with, but
// a follower whose own deadline expires first detaches and returns
// ctx.Err() instead of blocking until that leader's call finishes.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (any, error)) (any, error, bool) {
	if v, ok := c.Get(key); ok {
		return v, nil, true
	}

	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	resCh := c.group.DoChan(key, func() (any, error) {
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.set(key, result)
		return result, nil
	})

	select {
	case res := <-resCh:
		return res.Val, res.Err, res.Shared
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}

// Stats reports current cache occupancy and cumulative hit/miss counts,
// used by the /debug/cache-stats endpoint.
type Stats struct {
	Size      int
	Capacity  int
	Hits      uint64
	Misses    uint64
	InFlight  int
}

// Stats returns a snapshot of the cache's current state.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:     c.order.Len(),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
		InFlight: c.inFlight,
	}
}
