package backend

import (
	"context"
	"log/slog"
	"sync"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/observability"
)

// Fetcher retrieves hazard snapshots.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, req domain.SnapshotRequest) (domain.GridSnapshot, error)
}

// Store is a shared cache tier behind the in-memory LRU.
type Store interface {
	Get(ctx context.Context, key string) (domain.GridSnapshot, bool, error)
	Set(ctx context.Context, key string, snap domain.GridSnapshot) error
}

// CachedFetcher wraps a Fetcher with an in-memory LRU cache and an optional
// shared Store. Store failures are logged and never fail a fetch.
type CachedFetcher struct {
	inner   Fetcher
	cache   *lruCache
	store   Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedFetcher creates a cache decorator around a fetcher. store may be
// nil.
func NewCachedFetcher(inner Fetcher, maxEntries int, store Store, metrics *observability.Metrics, logger *slog.Logger) *CachedFetcher {
	return &CachedFetcher{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *CachedFetcher) FetchSnapshot(ctx context.Context, req domain.SnapshotRequest) (domain.GridSnapshot, error) {
	key := req.Key()
	if snap, ok := c.cache.get(key); ok {
		c.observe("memory", "hit")
		return snap, nil
	}
	c.observe("memory", "miss")

	if c.store != nil {
		snap, ok, err := c.store.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("snapshot store lookup failed", "key", key, "error", err)
		case ok:
			c.observe("redis", "hit")
			c.cache.put(key, snap)
			return snap, nil
		default:
			c.observe("redis", "miss")
		}
	}

	snap, err := c.inner.FetchSnapshot(ctx, req)
	if err != nil {
		return snap, err
	}
	// Only cache grids with data so an empty response can be retried.
	if snap.Cells() == 0 {
		return snap, nil
	}
	c.cache.put(key, snap)
	if c.store != nil {
		if err := c.store.Set(ctx, key, snap); err != nil {
			c.logger.Warn("snapshot store write failed", "key", key, "error", err)
		}
	}
	return snap, nil
}

func (c *CachedFetcher) observe(tier, result string) {
	if c.metrics != nil {
		c.metrics.SnapshotCache.WithLabelValues(tier, result).Inc()
	}
}

// lruCache is a simple thread-safe LRU cache for grid snapshots.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.GridSnapshot
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.GridSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.GridSnapshot{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.GridSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
