package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// MemoryCache implements DataCache using in-memory storage
type MemoryCache struct {
	cache map[string][]types.Bar
	mutex sync.RWMutex
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		cache: make(map[string][]types.Bar),
	}
}

// Get returns a copy of the cached bars
func (c *MemoryCache) Get(key string) ([]types.Bar, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	data, exists := c.cache[key]
	if !exists {
		return nil, false
	}
	result := make([]types.Bar, len(data))
	copy(result, data)
	return result, true
}

// Set stores a copy of data
func (c *MemoryCache) Set(key string, data []types.Bar) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	cached := make([]types.Bar, len(data))
	copy(cached, data)
	c.cache[key] = cached
}

// Clear removes all cached data
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache = make(map[string][]types.Bar)
}

// Size returns the number of cached entries
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.cache)
}

// CachedProvider wraps another CandleRepository with caching. Parallel runs
// over the same symbol load the candles once.
type CachedProvider struct {
	provider CandleRepository
	cache    DataCache
	log      *logger.Logger
}

// NewCachedProvider creates a new cached data provider
func NewCachedProvider(provider CandleRepository, log *logger.Logger) *CachedProvider {
	return NewCachedProviderWithCache(provider, NewMemoryCache(), log)
}

// NewCachedProviderWithCache creates a new cached data provider with custom cache
func NewCachedProviderWithCache(provider CandleRepository, cache DataCache, log *logger.Logger) *CachedProvider {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedProvider{
		provider: provider,
		cache:    cache,
		log:      log,
	}
}

// GetCandles serves from the cache or loads and caches through the provider
func (p *CachedProvider) GetCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]types.Bar, error) {
	key := cacheKey(symbol, interval, start, end)
	if cached, exists := p.cache.Get(key); exists {
		return cached, nil
	}

	data, err := p.provider.GetCandles(ctx, symbol, interval, start, end)
	if err != nil {
		p.log.LogError("load candles "+key, err)
		return nil, err
	}
	p.cache.Set(key, data)
	p.log.Info("loaded and cached %s (%d bars)", key, len(data))
	return data, nil
}

// GetCache returns the underlying cache for external management
func (p *CachedProvider) GetCache() DataCache {
	return p.cache
}

// ClearCache clears all cached data
func (p *CachedProvider) ClearCache() {
	p.cache.Clear()
}

func cacheKey(symbol, interval string, start, end time.Time) string {
	var s, e int64
	if !start.IsZero() {
		s = start.UnixMilli()
	}
	if !end.IsZero() {
		e = end.UnixMilli()
	}
	return fmt.Sprintf("%s|%s|%d|%d", symbol, interval, s, e)
}
