package projection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmdatafocus/rupture_engine/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const dateLayout = "2006-01-02"

// CacheKey identifies one cached projection. Scope is the business the projection was
// read for; stores filter by it, so two businesses never share an entry.
type CacheKey struct {
	Scope   string
	Product ProductKey
	AsOf    string
	Horizon int
}

func NewCacheKey(scope string, product ProductKey, asOf time.Time, horizon int) CacheKey {
	return CacheKey{Scope: scope, Product: product, AsOf: asOf.Format(dateLayout), Horizon: horizon}
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%d", k.Scope, k.Product, k.AsOf, k.Horizon)
}

// ComputeFunc builds a fresh projection on a cache miss.
type ComputeFunc func(ctx context.Context) (*DailyProjection, error)

type cacheEntry struct {
	projection *DailyProjection
	computedAt time.Time
	ttl        time.Duration
	version    uint64
	generation uint64
}

// Backing is an optional second-level store shared between instances.
type Backing interface {
	Load(ctx context.Context, key CacheKey) (*DailyProjection, time.Time, bool, error)
	Store(ctx context.Context, key CacheKey, p *DailyProjection, computedAt time.Time, ttl time.Duration) error
	Invalidate(ctx context.Context, product ProductKey) error
	InvalidateAll(ctx context.Context) error
}

type CacheStats struct {
	Entries       int   `json:"entries"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	StaleReads    int64 `json:"stale_reads"`
	BackingHits   int64 `json:"backing_hits"`
	Computations  int64 `json:"computations"`
	Invalidations int64 `json:"invalidations"`
}

type CacheOption func(*ProjectionCache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *ProjectionCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) CacheOption {
	return func(c *ProjectionCache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithBacking(b Backing) CacheOption {
	return func(c *ProjectionCache) { c.backing = b }
}

func WithCacheLogger(logger *logrus.Logger) CacheOption {
	return func(c *ProjectionCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ProjectionCache is a read-through projection cache with TTL expiry and per-product
// lazy invalidation. Concurrent misses for the same key share one computation.
type ProjectionCache struct {
	mu         sync.RWMutex
	entries    map[CacheKey]*cacheEntry
	versions   map[ProductKey]uint64
	generation uint64

	// L2 entries computed before these instants are ignored.
	invalidatedAt    map[ProductKey]time.Time
	invalidatedAllAt time.Time

	flight  singleflight.Group
	ttl     time.Duration
	now     func() time.Time
	backing Backing
	logger  *logrus.Logger

	hits          atomic.Int64
	misses        atomic.Int64
	stale         atomic.Int64
	backingHits   atomic.Int64
	computations  atomic.Int64
	invalidations atomic.Int64
}

func NewProjectionCache(opts ...CacheOption) *ProjectionCache {
	c := &ProjectionCache{
		entries:       make(map[CacheKey]*cacheEntry),
		versions:      make(map[ProductKey]uint64),
		invalidatedAt: make(map[ProductKey]time.Time),
		ttl:           2 * time.Minute,
		now:           time.Now,
		logger:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ProjectionCache) TTL() time.Duration { return c.ttl }

// GetOrCompute returns the cached projection for (business in ctx, product, asOf day,
// horizon) or computes it. The computation itself is detached from ctx so that one impatient
// caller cannot fail the others waiting on it; ctx only bounds how long this caller waits.
func (c *ProjectionCache) GetOrCompute(ctx context.Context, product ProductKey, asOf time.Time, horizon int, compute ComputeFunc) (*DailyProjection, error) {
	scope, _ := utils.GetBusinessIdFromContext(ctx)
	key := NewCacheKey(scope, product, asOf, horizon)

	c.mu.RLock()
	version := c.versions[product]
	generation := c.generation
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		if err := c.check(entry, version, generation); err == nil {
			c.hits.Add(1)
			cacheLookups.WithLabelValues("hit").Inc()
			return entry.projection, nil
		}
		c.stale.Add(1)
		cacheLookups.WithLabelValues("stale").Inc()
		c.drop(key, entry)
	}
	c.misses.Add(1)
	cacheLookups.WithLabelValues("miss").Inc()

	flightKey := fmt.Sprintf("%s|v%d|g%d", key, version, generation)
	detached := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(flightKey, func() (interface{}, error) {
		return c.fill(detached, key, version, generation, compute)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*DailyProjection), nil
	}
}

func (c *ProjectionCache) check(entry *cacheEntry, version, generation uint64) error {
	if entry.version != version || entry.generation != generation {
		return errStaleCacheRead
	}
	if c.now().Sub(entry.computedAt) >= entry.ttl {
		return errStaleCacheRead
	}
	return nil
}

func (c *ProjectionCache) drop(key CacheKey, entry *cacheEntry) {
	c.mu.Lock()
	if c.entries[key] == entry {
		delete(c.entries, key)
	}
	cacheEntries.Set(float64(len(c.entries)))
	c.mu.Unlock()
}

func (c *ProjectionCache) fill(ctx context.Context, key CacheKey, version, generation uint64, compute ComputeFunc) (*DailyProjection, error) {
	if p, computedAt, ok := c.loadBacking(ctx, key); ok {
		c.backingHits.Add(1)
		cacheLookups.WithLabelValues("l2_hit").Inc()
		c.store(key, p, computedAt, version, generation)
		return p, nil
	}

	c.computations.Add(1)
	started := c.now()
	timer := time.Now()
	p, err := compute(ctx)
	computeDuration.Observe(time.Since(timer).Seconds())
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: compute returned no projection for %s", ErrInvalidProjectionInput, key)
	}

	if c.store(key, p, started, version, generation) && c.backing != nil {
		if err := c.backing.Store(ctx, key, p, started, c.ttl); err != nil {
			c.logger.WithFields(logrus.Fields{
				"module":   "projection",
				"funcName": "fill",
				"key":      key.String(),
			}).Warn("store projection in backing cache: " + err.Error())
		}
	}
	return p, nil
}

// store keeps p unless the product was invalidated while it was being computed.
func (c *ProjectionCache) store(key CacheKey, p *DailyProjection, computedAt time.Time, version, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[key.Product] != version || c.generation != generation {
		return false
	}
	c.entries[key] = &cacheEntry{
		projection: p,
		computedAt: computedAt,
		ttl:        c.ttl,
		version:    version,
		generation: generation,
	}
	cacheEntries.Set(float64(len(c.entries)))
	return true
}

func (c *ProjectionCache) loadBacking(ctx context.Context, key CacheKey) (*DailyProjection, time.Time, bool) {
	if c.backing == nil {
		return nil, time.Time{}, false
	}
	p, computedAt, ok, err := c.backing.Load(ctx, key)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"module":   "projection",
			"funcName": "loadBacking",
			"key":      key.String(),
		}).Warn("load projection from backing cache: " + err.Error())
		return nil, time.Time{}, false
	}
	if !ok || c.now().Sub(computedAt) >= c.ttl {
		return nil, time.Time{}, false
	}
	c.mu.RLock()
	cut := c.invalidatedAt[key.Product]
	if c.invalidatedAllAt.After(cut) {
		cut = c.invalidatedAllAt
	}
	c.mu.RUnlock()
	if !cut.IsZero() && !computedAt.After(cut) {
		c.stale.Add(1)
		cacheLookups.WithLabelValues("l2_stale").Inc()
		return nil, time.Time{}, false
	}
	return p, computedAt, true
}

// Invalidate marks every cached projection of product stale.
func (c *ProjectionCache) Invalidate(ctx context.Context, product ProductKey) {
	c.mu.Lock()
	c.versions[product]++
	c.invalidatedAt[product] = c.now()
	c.mu.Unlock()
	c.invalidations.Add(1)
	cacheInvalidations.WithLabelValues("product").Inc()

	if c.backing != nil {
		if err := c.backing.Invalidate(ctx, product); err != nil {
			c.logger.WithFields(logrus.Fields{
				"module":   "projection",
				"funcName": "Invalidate",
				"product":  product,
			}).Error("invalidate backing cache: " + err.Error())
		}
	}
}

// InvalidateAll marks every cached projection stale.
func (c *ProjectionCache) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	c.invalidatedAllAt = c.now()
	c.mu.Unlock()
	c.invalidations.Add(1)
	cacheInvalidations.WithLabelValues("all").Inc()

	if c.backing != nil {
		if err := c.backing.InvalidateAll(ctx); err != nil {
			c.logger.WithFields(logrus.Fields{
				"module":   "projection",
				"funcName": "InvalidateAll",
			}).Error("invalidate backing cache: " + err.Error())
		}
	}
}

// Sweep removes expired and invalidated entries and returns how many were removed.
func (c *ProjectionCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if c.check(entry, c.versions[key.Product], c.generation) != nil {
			delete(c.entries, key)
			removed++
		}
	}
	cacheEntries.Set(float64(len(c.entries)))
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (c *ProjectionCache) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.WithFields(logrus.Fields{
					"module":  "projection",
					"removed": n,
				}).Debug("projection cache sweep")
			}
		}
	}
}

func (c *ProjectionCache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{
		Entries:       entries,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		StaleReads:    c.stale.Load(),
		BackingHits:   c.backingHits.Load(),
		Computations:  c.computations.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
