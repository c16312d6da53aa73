package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
	"github.com/DikshantJangra/hoperxpharma-sub002/metrics"
)

const redisLabel = string(BackendRedis)

// scanBatch is the COUNT hint for SCAN and the DEL batch size.
const scanBatch = 500

// Compile-time check to ensure Redis implements Cache
var _ interfaces.Cache = (*Redis)(nil)

// Redis is a cache backend shared by every instance of the service. All keys are
// stored under prefix so Flush never touches foreign data.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues(redisLabel).Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.CacheErrors.WithLabelValues(redisLabel, "get").Inc()
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	metrics.CacheHits.WithLabelValues(redisLabel).Inc()
	return val, true, nil
}

// Set stores value with the given ttl; a non-positive ttl stores without expiry.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues(redisLabel, "set").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues(redisLabel, "delete").Inc()
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// DeletePattern walks the keyspace with SCAN and deletes matches in batches.
func (r *Redis) DeletePattern(ctx context.Context, pattern string) (int, error) {
	match := redisGlob(r.prefix, pattern)

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			metrics.CacheErrors.WithLabelValues(redisLabel, "scan").Inc()
			return removed, fmt.Errorf("redis scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				metrics.CacheErrors.WithLabelValues(redisLabel, "delete").Inc()
				return removed, fmt.Errorf("redis del %s: %w", pattern, err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues(redisLabel, "invalidated").Add(float64(removed))
	}
	return removed, nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		metrics.CacheErrors.WithLabelValues(redisLabel, "exists").Inc()
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Flush deletes every key under the configured prefix.
func (r *Redis) Flush(ctx context.Context) error {
	_, err := r.DeletePattern(ctx, "*")
	return err
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// redisGlob turns a '*'-only pattern into a Redis MATCH pattern. Redis treats
// ? [ ] and \ as glob syntax, so they are escaped, as is any '*' in the prefix.
func redisGlob(prefix, pattern string) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(pattern) + 8)
	writeEscaped(&b, prefix, true)
	writeEscaped(&b, pattern, false)
	return b.String()
}

func writeEscaped(b *strings.Builder, s string, escapeStar bool) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '?', '[', ']', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '*':
			if escapeStar {
				b.WriteByte('\\')
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
}
