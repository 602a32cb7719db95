// Package tokencache caches resolved session tokens for a short, fixed window so that
// authenticated requests do not hit the session store on every call.
package tokencache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultTTL is the freshness window of a cached resolution.
const DefaultTTL = 60 * time.Second

// DefaultSize is the default capacity of MemoryCache.
const DefaultSize = 10000

// generationStripes is the number of invalidation counters MemoryCache keeps. Tokens share
// counters by hash, so memory stays fixed however many tokens are invalidated.
const generationStripes = 256

// Entry is a cached token resolution.
type Entry struct {
	Valid     bool
	Address   string
	UserID    string
	Allowed   bool
	IsAdmin   bool
	Timestamp time.Time
}

// Cache maps opaque session tokens to their last resolution. It is a derived view: dropping
// any entry costs a store lookup, never correctness.
type Cache interface {
	// Get returns the entry for token if present and fresh.
	Get(token string) (Entry, bool)
	// Set stores e for token with a fresh timestamp, replacing any prior entry.
	Set(token string, e Entry)
	// Generation returns the invalidation generation of token. Read it before consulting the
	// session store and hand it to SetIfGeneration.
	Generation(token string) uint64
	// SetIfGeneration stores e like Set, but only if no Clear of token happened since gen was
	// read. It reports whether e was stored.
	SetIfGeneration(token string, gen uint64, e Entry) bool
	// Clear removes the entry for token immediately and advances its generation.
	Clear(token string)
	// Len returns the number of stored entries, fresh or stale.
	Len() int
}

// MemoryCache is a bounded in-process Cache. Staleness is checked on read; stale entries
// stay in place until overwritten or evicted by capacity.
type MemoryCache struct {
	mu      sync.Mutex
	gens    [generationStripes]uint64
	entries *lru.Cache[string, Entry]
	ttl     time.Duration
	nowF    func() time.Time

	lookups metric.Int64Counter
}

// Option configures a MemoryCache.
type Option func(*MemoryCache)

// WithClock overrides the time source. For tests.
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) { c.nowF = now }
}

// WithMeter records hit/miss/stale lookups on the given meter.
func WithMeter(m metric.Meter) Option {
	return func(c *MemoryCache) {
		if m == nil {
			return
		}
		counter, err := m.Int64Counter("fleet.token_cache.lookups",
			metric.WithDescription("Token cache lookups by result"))
		if err == nil {
			c.lookups = counter
		}
	}
}

// NewMemoryCache returns a MemoryCache holding at most size entries, each fresh for ttl.
// Non-positive arguments fall back to DefaultSize and DefaultTTL.
func NewMemoryCache(size int, ttl time.Duration, opts ...Option) (*MemoryCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entries, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}
	c := &MemoryCache{entries: entries, ttl: ttl, nowF: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the entry for token iff it exists and now - Timestamp < TTL.
func (c *MemoryCache) Get(token string) (Entry, bool) {
	e, ok := c.entries.Get(token)
	if !ok {
		c.record("miss")
		return Entry{}, false
	}
	if c.nowF().Sub(e.Timestamp) >= c.ttl {
		c.record("stale")
		return Entry{}, false
	}
	c.record("hit")
	return e, true
}

// Set stores e under token, stamping it with the current time.
func (c *MemoryCache) Set(token string, e Entry) {
	e.Timestamp = c.nowF()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(token, e)
}

// Generation returns the invalidation counter of token's stripe.
func (c *MemoryCache) Generation(token string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[stripe(token)]
}

// SetIfGeneration stores e only if token's stripe has not advanced past gen. A Clear of
// another token on the same stripe also rejects the write; the caller then just skips caching.
func (c *MemoryCache) SetIfGeneration(token string, gen uint64, e Entry) bool {
	e.Timestamp = c.nowF()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[stripe(token)] != gen {
		return false
	}
	c.entries.Add(token, e)
	return true
}

// Clear removes token from the cache and advances its generation.
func (c *MemoryCache) Clear(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[stripe(token)]++
	c.entries.Remove(token)
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// TTL returns the freshness window.
func (c *MemoryCache) TTL() time.Duration {
	return c.ttl
}

func stripe(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return h.Sum32() % generationStripes
}

func (c *MemoryCache) record(result string) {
	if c.lookups == nil {
		return
	}
	c.lookups.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}
