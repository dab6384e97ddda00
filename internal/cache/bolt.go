package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/filter"
)

const viewBucket = "views"

// boltEntry is the stored value; bbolt has no native expiry
type boltEntry struct {
	ExpiresAt time.Time    `json:"expires_at"`
	View      *filter.View `json:"view"`
}

// BoltResultCache persists filter views in a local bbolt file so they
// survive restarts
type BoltResultCache struct {
	db     *bolt.DB
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

// NewBoltResultCache opens (and creates) the cache file at path
func NewBoltResultCache(path string, ttl time.Duration, logger *logrus.Logger) (*BoltResultCache, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.FileSystemErrorf(err, "create cache directory for %s", path)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.StorageErrorf(err, "open bolt cache %s", path)
	}
	return &BoltResultCache{db: db, ttl: ttlOrDefault(ttl), logger: logger, now: time.Now}, nil
}

func (b *BoltResultCache) Get(ctx context.Context, key string) (*filter.View, bool, error) {
	var entry *boltEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(viewBucket))
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return nil
		}
		entry = &boltEntry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, false, errors.StorageErrorf(err, "read cached view %s", key)
	}
	if entry == nil || entry.View == nil {
		return nil, false, nil
	}
	if b.now().After(entry.ExpiresAt) {
		// Expired entries are removed lazily
		if err := b.delete(key); err != nil {
			b.logger.WithError(err).WithField("key", key).Debug("expired view not removed")
		}
		return nil, false, nil
	}
	return entry.View, true, nil
}

func (b *BoltResultCache) Set(ctx context.Context, key string, view *filter.View) error {
	data, err := json.Marshal(boltEntry{ExpiresAt: b.now().Add(b.ttl), View: view})
	if err != nil {
		return errors.InternalErrorf("encode view %s: %v", key, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(viewBucket))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), data)
	})
}

func (b *BoltResultCache) delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(viewBucket))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}

func (b *BoltResultCache) Purge(ctx context.Context) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(viewBucket)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(viewBucket))
	})
	if err != nil {
		return errors.StorageError(err, "purge bolt cache")
	}
	return nil
}

func (b *BoltResultCache) Close() error {
	return b.db.Close()
}
