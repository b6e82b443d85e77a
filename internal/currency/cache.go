package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryRateCache keeps one table per process.
type MemoryRateCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu    sync.RWMutex
	table *Table
}

func NewMemoryRateCache(ttl time.Duration, clock func() time.Time) *MemoryRateCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryRateCache{ttl: ttl, clock: clock}
}

func (c *MemoryRateCache) Get(context.Context) (Table, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.table == nil {
		return Table{}, false, nil
	}
	if c.clock().Sub(c.table.FetchedAt) >= c.ttl {
		return Table{}, false, nil
	}
	return *c.table, true, nil
}

func (c *MemoryRateCache) Set(_ context.Context, table Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = &table
	return nil
}

const redisRatesKey = "rates:usd"

// RedisRateCache shares one table between instances. Expiry is left to Redis.
type RedisRateCache struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRedisRateCache(client redis.Cmdable, prefix string, ttl time.Duration) (*RedisRateCache, error) {
	if client == nil {
		return nil, errors.New("currency: redis client is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisRateCache{client: client, key: prefix + redisRatesKey, ttl: ttl}, nil
}

// Key returns the Redis key holding the table.
func (c *RedisRateCache) Key() string { return c.key }

func (c *RedisRateCache) Get(ctx context.Context) (Table, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Table{}, false, nil
	}
	if err != nil {
		return Table{}, false, fmt.Errorf("currency: redis get: %w", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		_ = c.client.Del(ctx, c.key).Err()
		return Table{}, false, fmt.Errorf("currency: decode cached table: %w", err)
	}
	return t, true, nil
}

func (c *RedisRateCache) Set(ctx context.Context, table Table) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("currency: encode table: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("currency: redis set: %w", err)
	}
	return nil
}
