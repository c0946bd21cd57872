package hook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lexlapax/llmspell/pkg/core"
)

// CacheKey is deterministic over (hook_point, component_id, hash(data ∪
// metadata), language_tag), per spec.md §3.
type CacheKey string

// cacheEntry holds a cached HookResult alongside the bookkeeping spec.md
// §3 names: creation/last-access timestamps, access count, TTL.
type cacheEntry struct {
	Result      HookResult
	CreatedAt   time.Time
	LastAccess  time.Time
	AccessCount int64
	TTL         time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.CreatedAt) > e.TTL
}

// CacheStats tracks hit/miss/eviction/expiration counters, per spec.md
// §4.4.
type CacheStats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
}

// ResultCache is an LRU-over-fixed-capacity cache of HookResults keyed by
// CacheKey, with per-entry TTL and a periodic sweep for expired entries.
// Built on github.com/hashicorp/golang-lru/v2, a direct teacher
// dependency (promoted from indirect) that covers exactly the "LRU over a
// fixed capacity" requirement spec.md §4.4 names.
type ResultCache struct {
	mu         sync.Mutex
	lru        *lru.Cache[CacheKey, *cacheEntry]
	stats      CacheStats
	defaultTTL time.Duration
}

// NewResultCache builds a cache with the given capacity and default TTL
// (used when a caller doesn't specify one via Put's ttl argument).
func NewResultCache(capacity int, defaultTTL time.Duration) *ResultCache {
	if capacity <= 0 {
		capacity = 1024
	}
	c, _ := lru.New[CacheKey, *cacheEntry](capacity)
	return &ResultCache{lru: c, defaultTTL: defaultTTL}
}

// BuildKey computes the deterministic CacheKey for a hook invocation.
func BuildKey(point HookPoint, componentID core.ComponentId, data, metadata map[string]any, lang Language) CacheKey {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|", point, componentID.String(), lang)
	writeSortedJSON(h, data)
	h.Write([]byte("|"))
	writeSortedJSON(h, metadata)
	return CacheKey(hex.EncodeToString(h.Sum(nil)))
}

func writeSortedJSON(w io.Writer, m map[string]any) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := json.Marshal(m[k])
		fmt.Fprintf(w, "%s=%s;", k, v)
	}
}

// Get returns the cached HookResult for key, if present and unexpired.
func (c *ResultCache) Get(key CacheKey) (HookResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return HookResult{}, false
	}
	now := timeNow()
	if entry.expired(now) {
		c.lru.Remove(key)
		c.stats.Expirations++
		c.stats.Misses++
		return HookResult{}, false
	}
	entry.LastAccess = now
	entry.AccessCount++
	c.stats.Hits++
	return entry.Result, true
}

// Put stores result under key with the given TTL (0 uses the cache's
// default TTL; a negative TTL disables expiration for this entry).
func (c *ResultCache) Put(key CacheKey, result HookResult, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := timeNow()
	evicted := c.lru.Add(key, &cacheEntry{
		Result:     result,
		CreatedAt:  now,
		LastAccess: now,
		TTL:        ttl,
	})
	if evicted {
		c.stats.Evictions++
	}
}

// Sweep removes every expired entry proactively, rather than waiting for a
// Get to discover it (spec.md §4.4: "periodic sweep removes expired
// entries").
func (c *ResultCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := timeNow()
	removed := 0
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if entry.expired(now) {
			c.lru.Remove(key)
			c.stats.Expirations++
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of hit/miss/eviction/expiration counters.
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// timeNow is indirected for deterministic tests.
var timeNow = time.Now
