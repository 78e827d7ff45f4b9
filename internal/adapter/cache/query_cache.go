// Package cache memoizes retrieval results for repeated queries against
// the same index snapshot.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"priorart/internal/domain"
)

// QueryCache is a small LRU with TTL. Entries are tagged with an index
// generation; publishing a new snapshot invalidates everything at once.
type QueryCache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	order    []string
	maxSize  int
	ttl      time.Duration
	indexGen uint64
}

type cacheEntry struct {
	results   []domain.RetrievalResult
	timestamp time.Time
	indexGen  uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func cacheKey(queryText string, topK int) string {
	data := []byte(queryText)
	data = append(data, byte(topK>>8), byte(topK))
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

func (c *QueryCache) Get(queryText string, topK int) ([]domain.RetrievalResult, bool) {
	c.mu.RLock()
	key := cacheKey(queryText, topK)
	entry, exists := c.entries[key]
	currentGen := c.indexGen
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if time.Since(entry.timestamp) > c.ttl || entry.indexGen != currentGen {
		c.mu.Lock()
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()

	return entry.results, true
}

func (c *QueryCache) Put(queryText string, topK int, results []domain.RetrievalResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(queryText, topK)

	if _, exists := c.entries[key]; exists {
		c.entries[key] = &cacheEntry{
			results:   results,
			timestamp: time.Now(),
			indexGen:  c.indexGen,
		}
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &cacheEntry{
		results:   results,
		timestamp: time.Now(),
		indexGen:  c.indexGen,
	}
	c.order = append(c.order, key)
}

// Invalidate drops all entries. Called whenever a new snapshot is
// published so stale results are never served.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
	c.indexGen++
}

func (c *QueryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Retriever is the retrieval surface the cache wraps.
type Retriever interface {
	SetIndex(ix *domain.Index)
	Retrieve(ctx context.Context, q domain.Query, k int) ([]domain.RetrievalResult, error)
}

// CachedRetriever serves repeated queries from the cache. The pipeline
// is deterministic for a given snapshot, so a hit returns exactly what
// a fresh retrieval would, minus the provider round-trip.
type CachedRetriever struct {
	retriever Retriever
	cache     *QueryCache
}

func NewCachedRetriever(retriever Retriever, cache *QueryCache) *CachedRetriever {
	return &CachedRetriever{
		retriever: retriever,
		cache:     cache,
	}
}

// SetIndex publishes a snapshot to the wrapped retriever and drops all
// cached results.
func (r *CachedRetriever) SetIndex(ix *domain.Index) {
	r.retriever.SetIndex(ix)
	r.cache.Invalidate()
}

func (r *CachedRetriever) Retrieve(ctx context.Context, q domain.Query, k int) ([]domain.RetrievalResult, error) {
	text, err := q.Text()
	if err != nil {
		// Let the wrapped retriever produce the error.
		return r.retriever.Retrieve(ctx, q, k)
	}

	if results, hit := r.cache.Get(text, k); hit {
		return results, nil
	}

	results, err := r.retriever.Retrieve(ctx, q, k)
	if err != nil {
		return nil, err
	}

	r.cache.Put(text, k, results)
	return results, nil
}
