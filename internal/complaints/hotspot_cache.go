package complaints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// HotspotCache caches the heatmap payload keyed by row limit.
type HotspotCache interface {
	Get(ctx context.Context, limit int) ([]Hotspot, bool, error)
	Set(ctx context.Context, limit int, spots []Hotspot) error
	Invalidate(ctx context.Context) error
}

// RedisHotspotCache stores hotspot lists as JSON strings with a TTL.
type RedisHotspotCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisHotspotCache connects using a redis:// URL and pings the server.
func NewRedisHotspotCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisHotspotCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisHotspotCacheFromClient(client, ttl), nil
}

// NewRedisHotspotCacheFromClient wraps an existing client.
func NewRedisHotspotCacheFromClient(client *redis.Client, ttl time.Duration) *RedisHotspotCache {
	return &RedisHotspotCache{client: client, prefix: "muletrace:hotspots:", ttl: ttl}
}

func (r *RedisHotspotCache) key(limit int) string {
	return r.prefix + strconv.Itoa(limit)
}

func (r *RedisHotspotCache) Get(ctx context.Context, limit int) ([]Hotspot, bool, error) {
	data, err := r.client.Get(ctx, r.key(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var spots []Hotspot
	if err := json.Unmarshal(data, &spots); err != nil {
		return nil, false, fmt.Errorf("decode cached hotspots: %w", err)
	}
	return spots, true, nil
}

func (r *RedisHotspotCache) Set(ctx context.Context, limit int, spots []Hotspot) error {
	if spots == nil {
		spots = []Hotspot{}
	}
	data, err := json.Marshal(spots)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(limit), data, r.ttl).Err()
}

// Invalidate drops every cached limit.
func (r *RedisHotspotCache) Invalidate(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// PingContext makes the cache usable as a health.Pinger.
func (r *RedisHotspotCache) PingContext(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *RedisHotspotCache) Close() error {
	return r.client.Close()
}
