package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/addrlinks/internal/config"
	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/filter"
)

// KeyPrefix namespaces filter results in shared backends
const KeyPrefix = "addrlinks:view"

// ResultCache memoizes filter views. Cached views are shared between
// callers and must be treated as read-only.
type ResultCache interface {
	// Get returns the cached view; a miss is (nil, false, nil)
	Get(ctx context.Context, key string) (*filter.View, bool, error)
	Set(ctx context.Context, key string, view *filter.View) error
	// Purge removes every cached view
	Purge(ctx context.Context) error
	Close() error
}

// ResultKey builds the cache key for params applied to the dataset with
// the given fingerprint
func ResultKey(datasetFingerprint string, params filter.Params) string {
	sum := sha256.Sum256([]byte(datasetFingerprint + "\x00" + params.Key()))
	return CacheKey(KeyPrefix, hex.EncodeToString(sum[:8]), hex.EncodeToString(sum[8:16]))
}

// NewResultCache creates the result cache selected by cfg.Backend
func NewResultCache(ctx context.Context, cfg config.CacheConfig, logger *logrus.Logger) (ResultCache, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryResultCache(cfg.TTL), nil
	case "redis":
		rc, err := NewRedisResultCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return rc, nil
	case "bolt":
		bc, err := NewBoltResultCache(cfg.BoltPath, cfg.TTL, logger)
		if err != nil {
			return nil, err
		}
		return bc, nil
	default:
		return nil, errors.ConfigErrorf("unknown cache backend %q", cfg.Backend)
	}
}

// Lookup returns the cached view for key or computes and stores it, and
// reports whether it was a hit. Cache failures are logged and never fail
// the lookup.
func Lookup(ctx context.Context, rc ResultCache, key string, logger *logrus.Logger,
	compute func() (*filter.View, error)) (*filter.View, bool, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if rc != nil {
		view, ok, err := rc.Get(ctx, key)
		if err != nil {
			logger.WithError(err).WithField("key", key).Warn("result cache read failed")
		} else if ok {
			return view, true, nil
		}
	}

	view, err := compute()
	if err != nil {
		return nil, false, err
	}

	if rc != nil {
		if err := rc.Set(ctx, key, view); err != nil {
			logger.WithError(err).WithField("key", key).Warn("result cache write failed")
		}
	}
	return view, false, nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
