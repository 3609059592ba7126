// Package cache provides an in-process TTL + LRU store for expensive
// per-caller lookups.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"invoice-api/internal/config"
	"invoice-api/internal/domain"
	"invoice-api/pkg/clock"
	"invoice-api/pkg/janitor"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader produces the value for a missing key
type Loader[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
	ttl        time.Duration
	accessSeq  uint64
}

// BoundedCache is a size-bounded cache with per-entry TTL. Entries are
// evicted least recently accessed first, ordered by a monotonic access
// counter rather than wall-clock time. Concurrent misses on one key share
// a single load.
type BoundedCache[V any] struct {
	name        string
	maxSize     int
	ttl         time.Duration
	loadTimeout time.Duration
	clock       clock.Clock
	logger      *zap.Logger

	mu        sync.Mutex
	items     map[string]*list.Element
	lru       *list.List
	accessSeq uint64
	inflight  map[string]*loadTicket

	hits        uint64
	misses      uint64
	loads       uint64
	loadErrors  uint64
	evictions   uint64
	expirations uint64

	flight  singleflight.Group
	janitor *janitor.Janitor
}

// New creates a bounded cache
func New[V any](name string, cfg config.CacheConfig, clk clock.Clock, logger *zap.Logger) *BoundedCache[V] {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}

	c := &BoundedCache[V]{
		name:        name,
		maxSize:     cfg.MaxSize,
		ttl:         cfg.TTL,
		loadTimeout: cfg.LoadTimeout,
		clock:       clk,
		logger:      logger.With(zap.String("cache", name)),
		items:       make(map[string]*list.Element),
		inflight:    make(map[string]*loadTicket),
		lru:         list.New(),
	}
	c.janitor = janitor.New("cache."+name, cfg.SweepInterval, c.Sweep, c.logger)

	return c
}

// Start begins the periodic expiry sweep
func (c *BoundedCache[V]) Start(ctx context.Context) {
	c.janitor.Start(ctx)
}

// Stop halts the expiry sweep
func (c *BoundedCache[V]) Stop() {
	c.janitor.Stop()
}

// GetOrLoad returns the cached value for key when it is younger than ttl,
// otherwise it runs loader and caches the result. A non-positive ttl uses
// the configured default. Loader errors are returned as-is and never cached.
func (c *BoundedCache[V]) GetOrLoad(ctx context.Context, key string, loader Loader[V], ttl time.Duration) (V, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	if value, ok := c.lookup(key, ttl); ok {
		return value, nil
	}

	ch := c.flight.DoChan(key, func() (interface{}, error) {
		return c.load(ctx, key, loader, ttl)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		value, _ := res.Val.(V)
		return value, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Invalidate drops key and any in-flight load for it, so the next
// GetOrLoad always calls its loader
func (c *BoundedCache[V]) Invalidate(key string) {
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	if ticket, ok := c.inflight[key]; ok {
		ticket.stale = true
		delete(c.inflight, key)
	}
	c.mu.Unlock()

	c.flight.Forget(key)
}

// Len returns the number of cached entries
func (c *BoundedCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters
func (c *BoundedCache[V]) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := domain.CacheStats{
		Size:        c.lru.Len(),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Loads:       c.loads,
		LoadErrors:  c.loadErrors,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}

	return stats
}

// Sweep purges entries older than their ttl and re-enforces the size bound
func (c *BoundedCache[V]) Sweep() {
	now := c.clock.Now()

	c.mu.Lock()
	expired := 0
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		ent := elem.Value.(*entry[V])
		if now.Sub(ent.insertedAt) >= ent.ttl {
			c.removeElement(elem)
			c.expirations++
			expired++
		}
		elem = prev
	}
	evicted := c.enforceBound()
	c.mu.Unlock()

	if expired > 0 || evicted > 0 {
		c.logger.Debug("Cache swept",
			zap.Int("expired", expired),
			zap.Int("evicted", evicted))
	}
}

func (c *BoundedCache[V]) lookup(key string, ttl time.Duration) (V, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if ok {
		ent := elem.Value.(*entry[V])
		if now.Sub(ent.insertedAt) < ttl {
			c.touch(elem)
			c.hits++
			return ent.value, true
		}
	}

	c.misses++
	var zero V
	return zero, false
}

func (c *BoundedCache[V]) load(ctx context.Context, key string, loader Loader[V], ttl time.Duration) (value V, err error) {
	ticket := &loadTicket{}
	c.mu.Lock()
	c.inflight[key] = ticket
	c.loads++
	c.mu.Unlock()

	loadCtx := context.WithoutCancel(ctx)
	if c.loadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(loadCtx, c.loadTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache loader panicked: %v", r)
		}
		if err != nil {
			c.mu.Lock()
			c.loadErrors++
			c.release(key, ticket)
			c.mu.Unlock()
			c.logger.Warn("Cache load failed", zap.String("key", key), zap.Error(err))
		}
	}()

	value, err = loader(loadCtx)
	if err != nil {
		return value, err
	}

	c.store(key, value, ttl, ticket)
	return value, nil
}

// store inserts a freshly loaded value. A load that overlapped an
// Invalidate of the same key is returned to its callers but not cached.
func (c *BoundedCache[V]) store(key string, value V, ttl time.Duration, ticket *loadTicket) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.release(key, ticket)
	if ticket.stale {
		return
	}

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.insertedAt = now
		ent.ttl = ttl
		c.touch(elem)
		return
	}

	c.accessSeq++
	ent := &entry[V]{key: key, value: value, insertedAt: now, ttl: ttl, accessSeq: c.accessSeq}
	c.items[key] = c.lru.PushFront(ent)

	if evicted := c.enforceBound(); evicted > 0 {
		c.logger.Debug("Cache evicted entries", zap.Int("evicted", evicted))
	}
}

// release must be called with c.mu held. A newer load of the same key keeps
// its own ticket.
func (c *BoundedCache[V]) release(key string, ticket *loadTicket) {
	if c.inflight[key] == ticket {
		delete(c.inflight, key)
	}
}

// touch must be called with c.mu held
func (c *BoundedCache[V]) touch(elem *list.Element) {
	c.accessSeq++
	elem.Value.(*entry[V]).accessSeq = c.accessSeq
	c.lru.MoveToFront(elem)
}

// enforceBound must be called with c.mu held. The list is kept in
// descending accessSeq order, so the back is always the lowest counter.
func (c *BoundedCache[V]) enforceBound() int {
	evicted := 0
	for c.lru.Len() > c.maxSize {
		c.removeElement(c.lru.Back())
		c.evictions++
		evicted++
	}
	return evicted
}

// removeElement must be called with c.mu held
func (c *BoundedCache[V]) removeElement(elem *list.Element) {
	c.lru.Remove(elem)
	delete(c.items, elem.Value.(*entry[V]).key)
}
