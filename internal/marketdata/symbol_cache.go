package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// SymbolCache stores per-exchange canonical symbol lists.
type SymbolCache interface {
	Get(ctx context.Context, exchange string) ([]string, bool)
	Set(ctx context.Context, exchange string, symbols []string)
}

// SymbolCacheEntry represents a cached symbol entry with metadata
type SymbolCacheEntry struct {
	Symbols  []string  `json:"symbols"`
	CachedAt time.Time `json:"cached_at"`
}

// SymbolCacheStats tracks cache performance metrics
type SymbolCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// RedisSymbolCache implements symbol caching using Redis
type RedisSymbolCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *logrus.Logger

	mu    sync.Mutex
	stats SymbolCacheStats
}

// NewRedisSymbolCache creates a new Redis-based symbol cache
func NewRedisSymbolCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisSymbolCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisSymbolCache{
		redis:  redisClient,
		ttl:    ttl,
		prefix: "arbwatch:symbols:",
		logger: logger,
	}
}

// Get retrieves symbols for an exchange from Redis cache
func (c *RedisSymbolCache) Get(ctx context.Context, exchange string) ([]string, bool) {
	data, err := c.redis.Get(ctx, c.prefix+exchange).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("exchange", exchange).Warn("Redis error getting cached symbols")
		}
		c.count(func(s *SymbolCacheStats) { s.Misses++ })
		return nil, false
	}

	var entry SymbolCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.WithError(err).WithField("exchange", exchange).Warn("Failed to decode cached symbols")
		c.count(func(s *SymbolCacheStats) { s.Misses++ })
		return nil, false
	}

	c.count(func(s *SymbolCacheStats) { s.Hits++ })
	return entry.Symbols, true
}

// Set stores symbols for an exchange in Redis cache
func (c *RedisSymbolCache) Set(ctx context.Context, exchange string, symbols []string) {
	data, err := json.Marshal(SymbolCacheEntry{Symbols: symbols, CachedAt: time.Now().UTC()})
	if err != nil {
		c.logger.WithError(err).WithField("exchange", exchange).Warn("Failed to encode symbols for cache")
		return
	}

	if err := c.redis.Set(ctx, c.prefix+exchange, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("exchange", exchange).Warn("Redis error caching symbols")
		return
	}

	c.count(func(s *SymbolCacheStats) { s.Sets++ })
	c.logger.WithFields(logrus.Fields{
		"exchange": exchange,
		"symbols":  len(symbols),
		"ttl":      c.ttl.String(),
	}).Debug("Cached exchange symbols")
}

// GetStats returns current cache statistics
func (c *RedisSymbolCache) GetStats() SymbolCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *RedisSymbolCache) count(fn func(*SymbolCacheStats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
