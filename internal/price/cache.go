package price

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection parameters for the price cache.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// CachedSource serves prices from a Redis hash and refreshes them from next
// once they are older than the TTL. Each mint lives at "refprice:<mint>"
// with fields "price" and "ts" (Unix milliseconds).
//
// Redis failures are logged and treated as a miss.
type CachedSource struct {
	rdb      redis.Cmdable
	next     Source
	ttl      time.Duration
	now      func() time.Time
	onLookup func(hit bool)
	logger   *log.Logger
}

// CacheOption configures CachedSource.
type CacheOption func(*CachedSource)

// WithCacheLogger sets the logger.
func WithCacheLogger(l *log.Logger) CacheOption {
	return func(c *CachedSource) {
		c.logger = l
	}
}

// WithLookupObserver reports every lookup as a hit or miss.
func WithLookupObserver(fn func(hit bool)) CacheOption {
	return func(c *CachedSource) {
		c.onLookup = fn
	}
}

// NewCachedSource wraps next with a Redis cache.
func NewCachedSource(rdb redis.Cmdable, next Source, ttl time.Duration, opts ...CacheOption) *CachedSource {
	c := &CachedSource{
		rdb:    rdb,
		next:   next,
		ttl:    ttl,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(mint string) string {
	return "refprice:" + mint
}

// Price implements Source.
func (c *CachedSource) Price(ctx context.Context, mint string) (float64, error) {
	if p, ok := c.lookup(ctx, mint); ok {
		c.observe(true)
		return p, nil
	}
	c.observe(false)

	p, err := c.next.Price(ctx, mint)
	if err != nil {
		return 0, err
	}

	c.store(ctx, mint, p)
	return p, nil
}

func (c *CachedSource) observe(hit bool) {
	if c.onLookup != nil {
		c.onLookup(hit)
	}
}

func (c *CachedSource) lookup(ctx context.Context, mint string) (float64, bool) {
	vals, err := c.rdb.HGetAll(ctx, cacheKey(mint)).Result()
	if err != nil {
		c.logger.Printf("price cache: get %s: %v", mint, err)
		return 0, false
	}
	if len(vals) == 0 {
		return 0, false
	}

	p, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil || p <= 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, false
	}
	if c.now().Sub(time.UnixMilli(ts)) > c.ttl {
		return 0, false
	}
	return p, true
}

func (c *CachedSource) store(ctx context.Context, mint string, p float64) {
	key := cacheKey(mint)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"price": strconv.FormatFloat(p, 'f', -1, 64),
			"ts":    strconv.FormatInt(c.now().UnixMilli(), 10),
		})
		pipe.Expire(ctx, key, 2*c.ttl)
		return nil
	})
	if err != nil {
		c.logger.Printf("price cache: set %s: %v", mint, err)
	}
}

var _ Source = (*CachedSource)(nil)
