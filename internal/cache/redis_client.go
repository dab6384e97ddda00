package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/filter"
	"github.com/rohankatakam/addrlinks/internal/logging"
)

// DefaultTTL applies when the configured TTL is zero
const DefaultTTL = 15 * time.Minute

// scanBatch is the COUNT hint used while purging
const scanBatch = 100

// RedisResultCache stores filter views in Redis so several server
// processes share them
type RedisResultCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisResultCache connects to addr ("host:port") and pings it once
func NewRedisResultCache(ctx context.Context, addr, password string, ttl time.Duration) (*RedisResultCache, error) {
	if addr == "" {
		return nil, errors.ConfigErrorf("redis address missing (cache.redis_addr)")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.ExternalErrorf(err, "connect to redis at %s", addr)
	}

	logger := logging.Component("redis")
	logger.Info("result cache connected", "addr", addr)
	return &RedisResultCache{rdb: rdb, ttl: ttlOrDefault(ttl), logger: logger}, nil
}

func (r *RedisResultCache) Get(ctx context.Context, key string) (*filter.View, bool, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.ExternalErrorf(err, "redis get %s", key)
	}

	var view filter.View
	if err := json.Unmarshal(raw, &view); err != nil {
		// A stale encoding is treated as a miss and overwritten on the next Set
		r.logger.Warn("dropping undecodable cached view", "key", key, "error", err)
		return nil, false, nil
	}
	return &view, true, nil
}

func (r *RedisResultCache) Set(ctx context.Context, key string, view *filter.View) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityMedium, "encode view")
	}
	if err := r.rdb.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		return errors.ExternalErrorf(err, "redis set %s", key)
	}
	return nil
}

// Purge drops every key under KeyPrefix, one SCAN page at a time
func (r *RedisResultCache) Purge(ctx context.Context) error {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, KeyPrefix+":*", scanBatch).Result()
		if err != nil {
			return errors.ExternalErrorf(err, "redis scan")
		}
		if len(keys) > 0 {
			n, err := r.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return errors.ExternalErrorf(err, "redis del")
			}
			deleted += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	r.logger.Info("result cache purged", "deleted", deleted)
	return nil
}

func (r *RedisResultCache) Close() error {
	return r.rdb.Close()
}

// CacheKey joins prefix and parts with ':'
func CacheKey(prefix string, parts ...string) string {
	return strings.Join(append([]string{prefix}, parts...), ":")
}
