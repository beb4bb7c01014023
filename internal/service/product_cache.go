package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/order-ledger/internal/domain"
	"github.com/sakashimaa/order-ledger/internal/metrics"
	"github.com/sakashimaa/order-ledger/pkg/mylogger"
	"github.com/sakashimaa/order-ledger/pkg/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ProductCache holds display copies of products. Nothing that decides stock
// or versions may read from it.
type ProductCache struct {
	client  *redis.Client
	cb      *gobreaker.CircuitBreaker
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewProductCache(client *redis.Client, ttl time.Duration, m *metrics.Metrics, logger *zap.Logger) *ProductCache {
	return &ProductCache{
		client:  client,
		cb:      utils.NewBreaker("redis-product-cache", logger),
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// Both keys of a product share a hash tag so the scripts below stay on one slot.
func productKey(id int64) string {
	return fmt.Sprintf("product:{%d}", id)
}

func fenceKey(id int64) string {
	return fmt.Sprintf("product:{%d}:fence", id)
}

// setScript stores a product unless a newer version was cached or fenced off
// by an eviction. KEYS: product, fence. ARGV: payload, version, ttl ms.
var setScript = redis.NewScript(`
local fence = redis.call('GET', KEYS[2])
if fence and tonumber(fence) > tonumber(ARGV[2]) then
	return 0
end
local cached = redis.call('GET', KEYS[1])
if cached and tonumber(cjson.decode(cached).version) > tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// evictScript drops the cached product and raises the fence to the version
// that made it stale. KEYS: product, fence. ARGV: version, ttl ms.
var evictScript = redis.NewScript(`
local fence = tonumber(redis.call('GET', KEYS[2]) or '-1')
if tonumber(ARGV[1]) > fence then
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
end
return redis.call('DEL', KEYS[1])
`)

func (c *ProductCache) Get(ctx context.Context, id int64) (*domain.Product, bool) {
	val, err := utils.ExecuteWithBreaker(c.cb, func() (string, error) {
		val, err := c.client.Get(ctx, productKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			// a miss is not a breaker failure
			return "", nil
		}

		return val, err
	})
	if err != nil {
		c.metrics.CacheLookups.WithLabelValues("error").Inc()
		mylogger.Warn(ctx, c.logger, "Product cache read failed", zap.Int64("product_id", id), zap.Error(err))

		return nil, false
	}

	if val == "" {
		c.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var product domain.Product
	if err := json.Unmarshal([]byte(val), &product); err != nil {
		c.metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}

	c.metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &product, true
}

func (c *ProductCache) Set(ctx context.Context, product *domain.Product) {
	data, err := json.Marshal(product)
	if err != nil {
		return
	}

	keys := []string{productKey(product.ID), fenceKey(product.ID)}
	_, err = utils.ExecuteWithBreaker(c.cb, func() (int64, error) {
		return setScript.Run(ctx, c.client, keys, data, product.Version, c.ttl.Milliseconds()).Int64()
	})
	if err != nil {
		mylogger.Warn(ctx, c.logger, "Product cache write failed", zap.Int64("product_id", product.ID), zap.Error(err))
	}
}

// Evict drops a product after a committed write produced version. Copies read
// before that write can no longer be stored, even if their Set lands later.
// Failures are logged only: the write already committed and the entry expires
// with its TTL.
func (c *ProductCache) Evict(ctx context.Context, id, version int64) {
	keys := []string{productKey(id), fenceKey(id)}
	_, err := utils.ExecuteWithBreaker(c.cb, func() (int64, error) {
		return evictScript.Run(ctx, c.client, keys, version, c.ttl.Milliseconds()).Int64()
	})
	if err != nil {
		mylogger.Warn(
			ctx,
			c.logger,
			"Product cache eviction failed",
			zap.Int64("product_id", id),
			zap.Int64("version", version),
			zap.Error(err),
		)
	}
}

func (c *ProductCache) Invalidate(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}

	_, err := utils.ExecuteWithBreaker(c.cb, func() (int64, error) {
		return c.client.Del(ctx, keys...).Result()
	})
	if err != nil {
		mylogger.Warn(ctx, c.logger, "Product cache invalidation failed", zap.Int64s("product_ids", ids), zap.Error(err))
		return fmt.Errorf("invalidate product cache: %w", err)
	}

	return nil
}
