// Package cache keeps the latest observed price per asset in Redis so
// dashboard reads skip the database. The cache is optional: a nil *Cache
// is a valid no-op handle.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	priceKeyPrefix = "price:"
	priceTTL       = 5 * time.Minute
)

var (
	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"key"},
	)
	cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"key"},
	)
)

func init() {
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
}

// Cache wraps the Redis client used for latest-price lookups and price
// update fan-out.
type Cache struct {
	client *redis.Client
}

// New connects to Redis at addr. Returns nil (cache disabled) when addr
// is empty or the server is unreachable; callers treat nil as a miss.
func New(ctx context.Context, addr string) *Cache {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Log.Warn("Redis unreachable, price cache disabled",
			zap.String("addr", addr),
			zap.Error(err),
		)
		return nil
	}
	logger.Log.Info("Price cache connected", zap.String("addr", addr))
	return &Cache{client: client}
}

// SetPrice stores the latest price for an asset and publishes the update
// for any subscribed dashboard.
func (c *Cache) SetPrice(ctx context.Context, asset models.AssetType, price float64) {
	if c == nil {
		return
	}
	key := priceKeyPrefix + string(asset)
	if err := c.client.Set(ctx, key, price, priceTTL).Err(); err != nil {
		logger.Log.Warn("Failed to cache price",
			zap.String("asset", string(asset)),
			zap.Error(err),
		)
		return
	}
	c.publishPrice(ctx, asset, price)
}

// GetPrice returns the cached price and whether it was present.
func (c *Cache) GetPrice(ctx context.Context, asset models.AssetType) (float64, bool) {
	if c == nil {
		return 0, false
	}
	key := priceKeyPrefix + string(asset)
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		cacheMissesTotal.WithLabelValues(key).Inc()
		return 0, false
	}
	if err != nil {
		logger.Log.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return 0, false
	}

	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	cacheHitsTotal.WithLabelValues(key).Inc()
	return price, true
}

// Invalidate drops every cached price.
func (c *Cache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	var cursor uint64
	removed := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, priceKeyPrefix+"*", 1000).Result()
		if err != nil {
			logger.Log.Warn("Cache scan failed during invalidation", zap.Error(err))
			return
		}
		for _, key := range keys {
			if err := c.client.Del(ctx, key).Err(); err == nil {
				removed++
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	logger.Log.Info("Price cache invalidated", zap.Int("removed_keys", removed))
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) publishPrice(ctx context.Context, asset models.AssetType, price float64) {
	payload := fmt.Sprintf(`{"asset":%q,"price":%g}`, asset, price)
	if err := c.client.Publish(ctx, PriceChannel, payload).Err(); err != nil {
		logger.Log.Debug("Price publish failed", zap.Error(err))
	}
}
