package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores query vectors in Redis so repeated runs against the
// same query set skip embedding work.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration // 0 = no expiry
	metrics CacheMetrics
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: "muvera:emb:",
		ttl:    ttl,
	}, nil
}

// SetMetrics sets the metrics recorder for this cache.
func (r *RedisCache) SetMetrics(metrics CacheMetrics) {
	r.metrics = metrics
}

// Get fetches vectors. Redis failures are treated as misses.
func (r *RedisCache) Get(ctx context.Context, key string) (*Vectors, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		r.recordMiss()
		return nil, false
	}

	var v Vectors
	if err := json.Unmarshal(data, &v); err != nil {
		r.recordMiss()
		return nil, false
	}

	if r.metrics != nil {
		r.metrics.RecordCacheHit("redis")
	}
	return &v, true
}

// Set stores vectors. Write failures are ignored: the cache is best effort.
func (r *RedisCache) Set(ctx context.Context, key string, v *Vectors) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, r.prefix+key, data, r.ttl).Err()
}

// Size returns the number of cached entries under the key prefix.
func (r *RedisCache) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) recordMiss() {
	if r.metrics != nil {
		r.metrics.RecordCacheMiss("redis")
	}
}
