// Package rediscache is the networked cache.Store backend, grounded on
// the pack's evalgo-org-eve RedisRepository (redis.ParseURL + a pinged
// client at construction time) adapted to cache.Store's narrower
// get/set contract.
package rediscache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cubedlayer/cubed/internal/cache"
)

func init() {
	cache.Register("redis", func(ctx context.Context, address string) (cache.Store, error) {
		return New(ctx, address)
	})
}

// Rediscache is a go-redis-backed cache.Store.
type Rediscache struct {
	client *redis.Client
}

// New parses address as a redis:// URL, opens a client, and pings it
// once so construction fails fast on a bad address (mirrors the
// pack's RedisRepository constructor).
func New(ctx context.Context, address string) (*Rediscache, error) {
	opts, err := redis.ParseURL(address)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return &Rediscache{client: client}, nil
}

func (r *Rediscache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *Rediscache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the underlying connection pool.
func (r *Rediscache) Close() error { return r.client.Close() }

var _ cache.Store = (*Rediscache)(nil)
