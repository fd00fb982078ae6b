package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
)

// Cache keeps recent rankings keyed by the full request, bounded by entry count,
// TTL and an approximate memory budget
type Cache struct {
	mu     sync.Mutex
	lru    *expirable.LRU[string, RankResponse]
	limit  int64
	used   atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache builds a cache from config. It returns nil when caching is disabled
func NewCache(cfg config.Cache) *Cache {
	if !cfg.Enabled {
		return nil
	}
	c := &Cache{limit: cfg.MemoryLimit}
	c.lru = expirable.NewLRU[string, RankResponse](cfg.MaxSize, c.evicted, cfg.TTL.Std())
	return c
}

// evicted is also called from the LRU's expiry goroutine
func (c *Cache) evicted(_ string, v RankResponse) {
	c.used.Add(-entrySize(v))
}

// Key hashes a request into a cache key
func Key(req RankRequest) string {
	body, _ := json.Marshal(req)
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Get returns a cached response
func (c *Cache) Get(key string) (RankResponse, bool) {
	if c == nil {
		return RankResponse{}, false
	}
	c.mu.Lock()
	v, ok := c.lru.Get(key)
	c.mu.Unlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Add stores a response, evicting the oldest entries while over the memory budget
func (c *Cache) Add(key string, resp RankResponse) {
	if c == nil {
		return
	}
	size := entrySize(resp)
	if c.limit > 0 && size > c.limit {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
	c.used.Add(size)
	c.lru.Add(key, resp)
	for c.limit > 0 && c.used.Load() > c.limit {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}

// Len returns the number of live entries
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Used returns the approximate bytes held
func (c *Cache) Used() int64 {
	if c == nil {
		return 0
	}
	return c.used.Load()
}

// Stats returns hit and miss counters
func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

func entrySize(r RankResponse) int64 {
	n := int64(len(r.Rationale) + len(r.Model))
	for _, rk := range r.Rankings {
		n += int64(len(rk.RefereeID)+len(rk.Reason)) + 16
	}
	return n
}

type cachedClient struct {
	next  Client
	cache *Cache
}

// WithCache wraps a client so identical requests are answered from the cache.
// Errors are never cached
func WithCache(next Client, cache *Cache) Client {
	if cache == nil || next == nil {
		return next
	}
	return &cachedClient{next: next, cache: cache}
}

func (c *cachedClient) Rank(ctx context.Context, req RankRequest) (RankResponse, error) {
	key := Key(req)
	if resp, ok := c.cache.Get(key); ok {
		resp.Cached = true
		return resp, nil
	}
	resp, err := c.next.Rank(ctx, req)
	if err != nil {
		return resp, err
	}
	c.cache.Add(key, resp)
	return resp, nil
}
