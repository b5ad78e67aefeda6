package waveform

import (
	"container/list"
	"context"
	"sync"

	"github.com/soundglass/waveview/pkg/logger"
)

// DefaultBudgetBytes is the default cache budget.
const DefaultBudgetBytes = 128 << 20

// segmentBytes is the memory charge for one cached segment: RGBA at a
// fixed width.
func segmentBytes(heightPx int) int64 {
	return int64(SegmentWidthPx * heightPx * 4)
}

type cacheEntry struct {
	key   SegmentKey
	fut   *Future
	bytes int64
	elem  *list.Element
}

// Cache keeps rendered segments under a byte budget with LRU eviction.
// A pending render lives in the cache as a future, so concurrent
// requests for the same key share one computation.
//
// The cache carries the render epoch: Clear cancels the epoch context,
// which aborts in-flight renders, then starts a fresh epoch.
type Cache struct {
	mu      sync.Mutex
	budget  int64
	used    int64
	entries map[SegmentKey]*cacheEntry
	lru     *list.List // front is most recently used
	stats   Stats

	epoch  context.Context
	cancel context.CancelFunc
}

// NewCache creates a cache. A non-positive budget selects
// DefaultBudgetBytes.
func NewCache(budgetBytes int64) *Cache {
	if budgetBytes <= 0 {
		budgetBytes = DefaultBudgetBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		budget:  budgetBytes,
		entries: make(map[SegmentKey]*cacheEntry),
		lru:     list.New(),
		epoch:   ctx,
		cancel:  cancel,
	}
}

// GetOrInsert returns the future for key, inserting a fresh pending one
// on a miss. created reports whether the caller must start the render;
// the returned context is the epoch the render belongs to.
func (c *Cache) GetOrInsert(key SegmentKey) (fut *Future, epoch context.Context, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.recordRequest()
	if e, ok := c.entries[key]; ok {
		c.stats.recordHit()
		c.lru.MoveToFront(e.elem)
		return e.fut, c.epoch, false
	}
	c.stats.recordMiss()
	c.stats.recordPut()
	return c.insertLocked(key), c.epoch, true
}

// Prefetch is GetOrInsert without statistics. Speculative lookups must
// not distort the demand counters.
func (c *Cache) Prefetch(key SegmentKey) (fut *Future, epoch context.Context, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.fut, c.epoch, false
	}
	return c.insertLocked(key), c.epoch, true
}

func (c *Cache) insertLocked(key SegmentKey) *Future {
	e := &cacheEntry{
		key:   key,
		fut:   NewFuture(),
		bytes: segmentBytes(key.HeightPx),
	}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.used += e.bytes
	c.evictLocked()
	return e.fut
}

// evictLocked drops least recently used entries until the budget holds.
// The newest entry is never evicted, so an oversized height still
// caches one segment at a time.
func (c *Cache) evictLocked() {
	for c.used > c.budget && c.lru.Len() > 1 {
		back := c.lru.Back()
		e := back.Value.(*cacheEntry)
		c.lru.Remove(back)
		delete(c.entries, e.key)
		c.used -= e.bytes
		c.stats.recordEviction()
	}
}

// Clear cancels the current render epoch and drops every entry. Cached
// futures already handed out stay valid; they just are not cached any
// more.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
	c.epoch, c.cancel = context.WithCancel(context.Background())
	c.entries = make(map[SegmentKey]*cacheEntry)
	c.lru.Init()
	c.used = 0
	c.stats.recordClear()
	logger.GetLogger().Debug("segment cache cleared")
}

// ResetStats zeroes the counters for a new audio session.
func (c *Cache) ResetStats() {
	c.stats.Reset()
}

// Stats returns a snapshot of the traffic counters.
func (c *Cache) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

// StatsLine returns the counters as one log line.
func (c *Cache) StatsLine() string {
	return c.stats.Compact()
}

// UsedBytes returns the currently charged bytes.
func (c *Cache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Len returns the number of cached segments.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
