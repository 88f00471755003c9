package measurement

import (
	"container/list"
	"sync"

	"github.com/524D/lcquant/internal/fileio"
)

// Stage names an intermediate processing result
type Stage string

const (
	StageRaw       Stage = "raw"
	StageCorrected Stage = "corrected"
	StagePeaks     Stage = "peaks"
	StageXIC       Stage = "xic"
	StageTIC       Stage = "tic"
)

// Key identifies a cached stage result. ID changes whenever the file
// is replaced or modified. Param distinguishes results of one stage that
// were computed with different settings.
type Key struct {
	ID    fileio.Identity
	Stage Stage
	Param string
}

// CacheStats counts cache lookups
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

type cacheEntry struct {
	key   Key
	value any
}

// Cache is a thread safe LRU cache of stage results. Results are shared
// between readers and must not be modified.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	entries map[Key]*list.Element
	order   *list.List
	stats   CacheStats
}

// NewCache returns a cache holding at most maxSize results, 0 is unlimited
func NewCache(maxSize int) *Cache {
	if maxSize < 0 {
		maxSize = 0
	}
	return &Cache{
		maxSize: maxSize,
		entries: make(map[Key]*list.Element),
		order:   list.New(),
	}
}

// Get looks up a result
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	return el.Value.(*cacheEntry).value, true
}

// Put stores a result, evicting the least recently used one if the
// cache is full
func (c *Cache) Put(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).value = value
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: value})
	if c.maxSize > 0 && c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.stats.Evictions++
	}
}

// Stats returns a snapshot of the cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.order.Len()
	return s
}

// cached returns the stage result for the file at path from c, computing
// and storing it with fn on a miss. Errors are not cached. A nil cache
// always calls fn.
func cached[T any](c *Cache, path string, key Key, fn func() (T, error)) (T, error) {
	if c == nil {
		return fn()
	}
	id, err := fileio.Identify(path)
	if err != nil {
		return fn()
	}
	key.ID = id
	if v, ok := c.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	c.Put(key, v)
	return v, nil
}
