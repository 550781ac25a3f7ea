package adjudicator

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/signalsfoundry/mesh-router/core"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheMaxAge bounds how long a scored route is served.
	DefaultCacheMaxAge = 5 * time.Second
	// DefaultCacheCapacity bounds the number of cached (source, destination) pairs.
	DefaultCacheCapacity = 4096
)

// Cache event labels.
const (
	CacheHit         = "hit"
	CacheMiss        = "miss"
	CacheExpired     = "expired"
	CacheInvalidated = "invalidated"
)

// CacheMetricsRecorder receives cache events.
type CacheMetricsRecorder interface {
	IncCacheEvent(event string)
}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Invalidations int64 `json:"invalidations"`
	Entries       int   `json:"entries"`
}

type routeKey struct {
	source string
	dest   string
}

type cacheEntry struct {
	route      ScoredRoute
	inserted   time.Time
	generation uint64
}

// RouteCache holds scored routes keyed by (source, destination). Entries aged
// MaxAge or more, and entries computed before the last InvalidateAll, are
// treated as absent. The store is size bounded; least recently
// used pairs are evicted first.
type RouteCache struct {
	maxAge   time.Duration
	capacity int
	now      func() time.Time
	metrics  CacheMetricsRecorder

	entries *expirable.LRU[routeKey, cacheEntry]
	flight  singleflight.Group

	// generation advances on every InvalidateAll. Entries carry the
	// generation their computation started in and are only served while it
	// is current.
	generation atomic.Uint64

	hits, misses, invalids atomic.Int64
}

// CacheOption customises a RouteCache.
type CacheOption func(*RouteCache)

// WithCacheCapacity bounds the number of cached pairs.
func WithCacheCapacity(n int) CacheOption {
	return func(c *RouteCache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithCacheClock replaces the wall clock used for age checks.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *RouteCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheMetrics attaches a recorder for cache events.
func WithCacheMetrics(m CacheMetricsRecorder) CacheOption {
	return func(c *RouteCache) {
		c.metrics = m
	}
}

// NewRouteCache creates a cache with the provided max age; zero uses a default.
func NewRouteCache(maxAge time.Duration, opts ...CacheOption) *RouteCache {
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	c := &RouteCache{
		maxAge:   maxAge,
		capacity: DefaultCacheCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.entries = expirable.NewLRU[routeKey, cacheEntry](c.capacity, nil, maxAge)
	return c
}

// MaxAge reports the configured entry lifetime.
func (c *RouteCache) MaxAge() time.Duration {
	if c == nil {
		return 0
	}
	return c.maxAge
}

// Get returns the cached route for the pair if it is younger than MaxAge and
// no InvalidateAll happened since its computation started.
func (c *RouteCache) Get(sourceID, destID string) (ScoredRoute, bool) {
	if c == nil {
		return ScoredRoute{}, false
	}
	key := routeKey{sourceID, destID}
	entry, ok := c.entries.Get(key)
	if !ok {
		c.recordMiss()
		return ScoredRoute{}, false
	}
	if entry.generation != c.generation.Load() {
		c.entries.Remove(key)
		c.recordMiss()
		return ScoredRoute{}, false
	}
	if c.now().Sub(entry.inserted) >= c.maxAge {
		c.entries.Remove(key)
		c.record(CacheExpired)
		c.recordMiss()
		return ScoredRoute{}, false
	}
	c.hits.Add(1)
	c.record(CacheHit)
	return entry.route.clone(), true
}

// Insert stores route for the pair, replacing any previous entry.
func (c *RouteCache) Insert(sourceID, destID string, route ScoredRoute) {
	if c == nil {
		return
	}
	c.insertAt(sourceID, destID, route, c.generation.Load())
}

func (c *RouteCache) insertAt(sourceID, destID string, route ScoredRoute, gen uint64) {
	c.entries.Add(routeKey{sourceID, destID}, cacheEntry{route: route.clone(), inserted: c.now(), generation: gen})
}

// Invalidate drops the entry for one pair.
func (c *RouteCache) Invalidate(sourceID, destID string) {
	if c == nil {
		return
	}
	if c.entries.Remove(routeKey{sourceID, destID}) {
		c.invalids.Add(1)
		c.record(CacheInvalidated)
	}
}

// InvalidateAll drops every entry.
func (c *RouteCache) InvalidateAll() {
	if c == nil {
		return
	}
	c.generation.Add(1)
	c.entries.Purge()
	c.invalids.Add(1)
	c.record(CacheInvalidated)
}

// Stats returns the current counters.
func (c *RouteCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalids.Load(),
		Entries:       c.entries.Len(),
	}
}

// GetOrCompute returns the cached route or runs compute, sharing a single
// in-flight computation among concurrent callers for the same pair. Errors are
// not cached.
func (c *RouteCache) GetOrCompute(sourceID, destID string, compute func() (ScoredRoute, error)) (ScoredRoute, error) {
	if route, ok := c.Get(sourceID, destID); ok {
		return route, nil
	}
	if c == nil {
		return compute()
	}
	// Callers arriving after an invalidation never join a computation that
	// started before it.
	gen := c.generation.Load()
	key := sourceID + "\x00" + destID + "\x00" + strconv.FormatUint(gen, 10)
	v, err, _ := c.flight.Do(key, func() (any, error) {
		route, err := compute()
		if err != nil {
			return nil, err
		}
		if c.generation.Load() == gen {
			c.insertAt(sourceID, destID, route, gen)
		}
		return route, nil
	})
	if err != nil {
		return ScoredRoute{}, err
	}
	return v.(ScoredRoute).clone(), nil
}

// OnTopologyEvent invalidates the cache when link state changes. It is meant
// to be passed to core.SharedGraph.Subscribe.
func (c *RouteCache) OnTopologyEvent(ev core.TopologyEvent) {
	switch ev.Type {
	case core.EventLinkAdded, core.EventLinkUpdated:
		c.InvalidateAll()
	}
}

func (c *RouteCache) recordMiss() {
	c.misses.Add(1)
	c.record(CacheMiss)
}

func (c *RouteCache) record(event string) {
	if c.metrics != nil {
		c.metrics.IncCacheEvent(event)
	}
}
