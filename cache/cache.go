// Package cache is the process-wide query cache shared by every data binding.
//
// Entries are keyed by resource (see Key) and become stale after a fixed stale
// time or when a mutation invalidates them by prefix. A stale entry is still
// served by Peek but is refetched by the next Fetch. Errors are never cached,
// and concurrent Fetch calls for the same key share one backend request.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/itsneelabh/cartshare/core"
)

// DefaultStaleTime is how long a fetched value is served without refetching.
const DefaultStaleTime = 30 * time.Second

// Observer is notified of cache traffic, per resource.
type Observer interface {
	CacheHit(resource string)
	CacheMiss(resource string)
	CacheInvalidated(resource string, entries int)
}

type noopObserver struct{}

func (noopObserver) CacheHit(string)              {}
func (noopObserver) CacheMiss(string)             {}
func (noopObserver) CacheInvalidated(string, int) {}

type entry struct {
	key       Key
	value     interface{}
	fetchedAt time.Time
	stale     bool
}

// Stats is a snapshot of cache counters
type Stats struct {
	Entries       int
	Hits          int64
	Misses        int64
	Invalidations int64
}

// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	staleTime time.Duration

	// invalidations and clears are bumped under mu; an in-flight fetch that
	// sees them move stores its result stale, or not at all after Clear.
	invalidations uint64
	clears        uint64

	group    singleflight.Group
	observer Observer
	logger   core.Logger
	now      func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
	marked atomic.Int64
}

// Option configures a Cache
type Option func(*Cache)

// WithStaleTime sets the freshness window. Zero or negative means every
// Fetch goes to the backend.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) {
		c.staleTime = d
	}
}

// WithObserver sets the traffic observer
func WithObserver(o Observer) Option {
	return func(c *Cache) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(c *Cache) {
		c.logger = core.ComponentLogger(logger, "cache")
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[string]*entry),
		staleTime: DefaultStaleTime,
		observer:  noopObserver{},
		logger:    &core.NoOpLogger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Peek returns the cached value for key, fresh or stale.
func (c *Cache) Peek(key Key) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// IsFresh reports whether key holds a value that Fetch would serve as is.
func (c *Cache) IsFresh(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key.id()]
	return ok && c.freshLocked(e)
}

// Set stores value under key as freshly fetched.
func (c *Cache) Set(key Key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.id()] = &entry{key: key, value: value, fetchedAt: c.now()}
}

// Update replaces the value under key with fn(old). Nothing happens when key
// is not cached or fn reports false. The fetch time is kept, so a patched
// entry goes stale on the original schedule.
func (c *Cache) Update(key Key, fn func(old interface{}) (interface{}, bool)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return false
	}
	next, ok := fn(e.value)
	if !ok {
		return false
	}
	e.value = next
	return true
}

// Invalidate marks every entry under prefix stale and returns how many were
// marked. Values stay readable through Peek until refetched.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	n := 0
	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			e.stale = true
			n++
		}
	}
	c.invalidations++
	c.mu.Unlock()

	c.marked.Add(int64(n))
	c.observer.CacheInvalidated(prefix.Resource(), n)
	c.logger.Debug("Cache invalidated", map[string]interface{}{
		"prefix":  prefix.String(),
		"entries": n,
	})
	return n
}

// Remove drops every entry under prefix
func (c *Cache) Remove(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Clear drops everything. Fetches already in flight do not repopulate it.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]*entry)
	c.clears++
	c.mu.Unlock()

	c.logger.Debug("Cache cleared", map[string]interface{}{
		"entries": n,
	})
}

// Stats returns a snapshot of the counters
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Entries:       n,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.marked.Load(),
	}
}

func (c *Cache) freshLocked(e *entry) bool {
	if e.stale || c.staleTime <= 0 {
		return false
	}
	return c.now().Sub(e.fetchedAt) < c.staleTime
}

// lookup returns a fresh value and the counters needed to store a refetch.
func (c *Cache) lookup(key Key) (value interface{}, fresh bool, invalidations, clears uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[key.id()]; ok && c.freshLocked(e) {
		return e.value, true, c.invalidations, c.clears
	}
	return nil, false, c.invalidations, c.clears
}

// store saves a fetched value unless the cache was cleared meanwhile.
func (c *Cache) store(key Key, value interface{}, invalidations, clears uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clears != clears {
		return
	}
	c.entries[key.id()] = &entry{
		key:       key,
		value:     value,
		fetchedAt: c.now(),
		stale:     c.invalidations != invalidations,
	}
}

// Fetch returns the fresh cached value for key or calls fn and caches its
// result. Concurrent callers for the same key share a single fn call. That
// call keeps the first caller's context values but not its cancellation, so
// a caller that gives up returns ctx.Err() without failing the others.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if v, fresh, _, _ := c.lookup(key); fresh {
		if typed, ok := v.(T); ok {
			c.hits.Add(1)
			c.observer.CacheHit(key.Resource())
			return typed, nil
		}
	}

	c.misses.Add(1)
	c.observer.CacheMiss(key.Resource())

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.id(), func() (interface{}, error) {
		_, _, invalidations, clears := c.lookup(key)
		v, err := fn(shared)
		if err != nil {
			return nil, err
		}
		c.store(key, v, invalidations, clears)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		typed, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache entry %s holds %T", key, res.Val)
		}
		return typed, nil
	}
}
