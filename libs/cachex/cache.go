package cachex

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a thin wrapper over a Redis client exposing the exact-key
// operations the services need: get, set-with-TTL, delete.
type Cache struct {
	rdb *redis.Client
}

func Open(addr, password string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{rdb: rdb}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Client exposes the underlying Redis client for middleware that needs it
// (e.g. the rate limiter).
func (c *Cache) Client() *redis.Client {
	return c.rdb
}

func ReadyCheck(c *Cache) func(context.Context) error {
	return func(ctx context.Context) error {
		if c == nil || c.rdb == nil {
			return errors.New("redis not configured")
		}
		return c.rdb.Ping(ctx).Err()
	}
}
