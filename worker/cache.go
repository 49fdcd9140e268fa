package worker

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheCapacity is the fixed solution-cache capacity.
const CacheCapacity = 1000

// CacheEntry is a single cached mining solution.
type CacheEntry struct {
	Nonce        uint64
	Hash         string
	Difficulty   uint32
	Hits         uint64
	CreatedAt    int64
	LastAccessed int64
}

// CacheStats reports point-in-time cache occupancy and hit ratio.
type CacheStats struct {
	Size       int
	Capacity   int
	TotalHits  uint64
	HitRate    float64
}

// SolutionCache is an LRU cache keyed by "{block_data}:{difficulty}"
// mapping to a cached (nonce, hash) solution. Eviction order is
// delegated to hashicorp/golang-lru; the entry shape and hit/stats
// bookkeeping layered on top match the spec exactly.
type SolutionCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, *CacheEntry]
	now   func() time.Time
}

// NewSolutionCache builds a cache with the fixed CacheCapacity. now, if
// nil, defaults to time.Now (tests may inject a deterministic clock).
func NewSolutionCache(now func() time.Time) *SolutionCache {
	c, err := lru.New[string, *CacheEntry](CacheCapacity)
	if err != nil {
		// Capacity is a positive compile-time constant; New only fails
		// for size <= 0.
		panic(fmt.Sprintf("worker: invalid cache capacity: %v", err))
	}
	if now == nil {
		now = time.Now
	}
	return &SolutionCache{inner: c, now: now}
}

func makeKey(blockData string, difficulty uint32) string {
	return fmt.Sprintf("%s:%d", blockData, difficulty)
}

// Lookup returns the cached (nonce, hash) for (blockData, difficulty),
// if present. On hit it bumps Hits/LastAccessed and moves the key to
// the MRU end.
func (c *SolutionCache) Lookup(blockData string, difficulty uint32) (nonce uint64, hash string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := makeKey(blockData, difficulty)
	entry, found := c.inner.Get(key)
	if !found {
		return 0, "", false
	}

	entry.Hits++
	entry.LastAccessed = c.now().UnixNano()
	// Get already promotes key to MRU in golang-lru's internal order.

	return entry.Nonce, entry.Hash, true
}

// Insert stores a new solution. If the key is new and the cache is at
// capacity, golang-lru evicts the LRU entry automatically.
func (c *SolutionCache) Insert(blockData string, difficulty uint32, nonce uint64, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := makeKey(blockData, difficulty)
	now := c.now().UnixNano()

	c.inner.Add(key, &CacheEntry{
		Nonce:        nonce,
		Hash:         hash,
		Difficulty:   difficulty,
		Hits:         0,
		CreatedAt:    now,
		LastAccessed: now,
	})
}

// Clear drops all entries.
func (c *SolutionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Purge()
}

// Stats reports size, capacity, total hits, and hit rate (total_hits /
// size, or 0 when empty).
func (c *SolutionCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.inner.Len()
	var totalHits uint64
	for _, key := range c.inner.Keys() {
		if entry, ok := c.inner.Peek(key); ok {
			totalHits += entry.Hits
		}
	}

	var hitRate float64
	if size > 0 {
		hitRate = float64(totalHits) / float64(size)
	}

	return CacheStats{
		Size:      size,
		Capacity:  CacheCapacity,
		TotalHits: totalHits,
		HitRate:   hitRate,
	}
}

// IsCached reports whether a solution is cached for (blockData,
// difficulty), for test/diagnostic use. It does not count as a
// lookup-hit metric event; callers recording cache-hit/miss metrics do
// so themselves around Lookup.
func (c *SolutionCache) IsCached(blockData string, difficulty uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inner.Peek(makeKey(blockData, difficulty))
	return ok
}
