// Package cache provides the page cache shared by open k-mer databases.
//
// Decoded (verified and decompressed) bin pages are cached by the identity of
// the database that owns them and the page's index. Cached values are never
// mutated after insertion, so callers may keep using a returned slice after
// the entry has been evicted.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Cache is the interface for all page cache implementations.
type Cache interface {
	// Insert adds a page to the cache, replacing any previous value for key.
	Insert(key Key, value []byte)

	// Lookup returns the cached page for key.
	Lookup(key Key) ([]byte, bool)

	// EraseFile removes every page belonging to fileID.
	EraseFile(fileID uint64)

	// Capacity returns the maximum number of bytes the cache holds.
	Capacity() uint64

	// Usage returns the number of bytes currently cached.
	Usage() uint64

	// Len returns the number of cached pages.
	Len() int
}

// Key identifies a cached page.
type Key struct {
	FileID    uint64
	PageIndex uint64
}

var nextFileID atomic.Uint64

// NewFileID returns a process-unique identifier for an opened database.
func NewFileID() uint64 {
	return nextFileID.Add(1)
}

// =============================================================================
// LRU Cache
// =============================================================================

// LRUCache is a thread-safe LRU page cache bounded by total page bytes.
type LRUCache struct {
	mu       sync.Mutex
	capacity uint64
	usage    uint64
	table    map[Key]*list.Element
	lru      *list.List // front is most recently used

	hits   atomic.Uint64
	misses atomic.Uint64
}

type lruEntry struct {
	key   Key
	value []byte
}

func getEntry(elem *list.Element) *lruEntry {
	entry, _ := elem.Value.(*lruEntry)
	return entry
}

// NewLRUCache creates an LRU cache holding at most capacity bytes.
func NewLRUCache(capacity uint64) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		table:    make(map[Key]*list.Element),
		lru:      list.New(),
	}
}

// Insert adds a page. A page larger than the whole capacity is not cached.
func (c *LRUCache) Insert(key Key, value []byte) {
	charge := uint64(len(value))
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.table[key]; ok {
		c.removeEntry(elem)
	}
	if charge > c.capacity {
		return
	}
	for c.usage+charge > c.capacity && c.lru.Len() > 0 {
		c.removeEntry(c.lru.Back())
	}
	c.table[key] = c.lru.PushFront(&lruEntry{key: key, value: value})
	c.usage += charge
}

// Lookup returns the cached page and marks it most recently used.
func (c *LRUCache) Lookup(key Key) ([]byte, bool) {
	c.mu.Lock()
	elem, ok := c.table[key]
	if ok {
		c.lru.MoveToFront(elem)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return getEntry(elem).value, true
}

// EraseFile removes all pages of fileID.
func (c *LRUCache) EraseFile(fileID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, elem := range c.table {
		if key.FileID == fileID {
			c.removeEntry(elem)
		}
	}
}

// Capacity returns the maximum capacity in bytes.
func (c *LRUCache) Capacity() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// Usage returns the bytes currently cached.
func (c *LRUCache) Usage() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Len returns the number of cached pages.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.table)
}

// HitCount returns the number of successful lookups.
func (c *LRUCache) HitCount() uint64 { return c.hits.Load() }

// MissCount returns the number of failed lookups.
func (c *LRUCache) MissCount() uint64 { return c.misses.Load() }

// removeEntry must be called with mu held.
func (c *LRUCache) removeEntry(elem *list.Element) {
	entry := getEntry(elem)
	delete(c.table, entry.key)
	c.lru.Remove(elem)
	c.usage -= uint64(len(entry.value))
}

// =============================================================================
// Sharded LRU Cache
// =============================================================================

// ShardedLRUCache spreads pages over several LRU shards to reduce lock
// contention between concurrent lookups.
type ShardedLRUCache struct {
	shards []*LRUCache
	mask   uint64
}

// DefaultShards is the shard count used when numShards is not positive.
const DefaultShards = 16

// NewShardedLRUCache creates a sharded cache. numShards is rounded up to a
// power of two and the capacity is divided evenly among shards.
func NewShardedLRUCache(capacity uint64, numShards int) *ShardedLRUCache {
	if numShards <= 0 {
		numShards = DefaultShards
	}
	numShards = nextPowerOf2(numShards)

	c := &ShardedLRUCache{
		shards: make([]*LRUCache, numShards),
		mask:   uint64(numShards - 1),
	}
	for i := range numShards {
		c.shards[i] = NewLRUCache(capacity / uint64(numShards))
	}
	return c
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (c *ShardedLRUCache) shard(key Key) *LRUCache {
	h := (key.FileID*0x9E3779B97F4A7C15 ^ key.PageIndex) * 0xBF58476D1CE4E5B9
	return c.shards[(h>>32)&c.mask]
}

// Insert adds a page.
func (c *ShardedLRUCache) Insert(key Key, value []byte) {
	c.shard(key).Insert(key, value)
}

// Lookup returns a cached page.
func (c *ShardedLRUCache) Lookup(key Key) ([]byte, bool) {
	return c.shard(key).Lookup(key)
}

// EraseFile removes all pages of fileID from every shard.
func (c *ShardedLRUCache) EraseFile(fileID uint64) {
	for _, s := range c.shards {
		s.EraseFile(fileID)
	}
}

// Capacity returns the total capacity.
func (c *ShardedLRUCache) Capacity() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.Capacity()
	}
	return total
}

// Usage returns the total bytes cached.
func (c *ShardedLRUCache) Usage() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.Usage()
	}
	return total
}

// Len returns the total number of cached pages.
func (c *ShardedLRUCache) Len() int {
	var total int
	for _, s := range c.shards {
		total += s.Len()
	}
	return total
}

// HitCount returns the total number of hits.
func (c *ShardedLRUCache) HitCount() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.HitCount()
	}
	return total
}

// MissCount returns the total number of misses.
func (c *ShardedLRUCache) MissCount() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.MissCount()
	}
	return total
}
