package cache

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/rohankatakam/addrlinks/internal/models"
	"github.com/rohankatakam/addrlinks/internal/storage"
)

// Snapshot is one loaded dataset together with the fingerprint it was read at
type Snapshot struct {
	Dataset     *models.Dataset
	Location    string
	Fingerprint string
	LoadedAt    time.Time
}

// SnapshotCache keeps loaded datasets keyed by (store location, fingerprint).
// A rebuild changes the fingerprint, so a stale entry is never returned even
// without Invalidate.
type SnapshotCache struct {
	store  storage.Store
	logger *logrus.Logger
	mem    *cache.Cache
	group  singleflight.Group
}

// NewSnapshotCache creates a snapshot cache over store
func NewSnapshotCache(store storage.Store, ttl time.Duration, logger *logrus.Logger) *SnapshotCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &SnapshotCache{
		store:  store,
		logger: logger,
		mem:    cache.New(ttl, 10*time.Minute),
	}
}

func snapshotKey(location, fingerprint string) string {
	return location + "|" + fingerprint
}

// Get returns the current snapshot, loading it at most once per fingerprint
// even under concurrent callers
func (c *SnapshotCache) Get(ctx context.Context) (*Snapshot, error) {
	fp, err := c.store.Fingerprint(ctx)
	if err != nil {
		return nil, err
	}

	key := snapshotKey(c.store.Location(), fp)
	if v, ok := c.mem.Get(key); ok {
		return v.(*Snapshot), nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.mem.Get(key); ok {
			return v, nil
		}
		ds, err := c.store.LoadDataset(ctx)
		if err != nil {
			return nil, err
		}
		snap := &Snapshot{
			Dataset:     ds,
			Location:    c.store.Location(),
			Fingerprint: fp,
			LoadedAt:    time.Now(),
		}
		// Older fingerprints for this location are dead weight
		c.Invalidate()
		c.mem.SetDefault(key, snap)

		c.logger.WithFields(logrus.Fields{
			"location":    snap.Location,
			"fingerprint": fp,
			"nodes":       len(ds.Nodes),
			"edges":       len(ds.Edges),
		}).Debug("snapshot loaded")
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.WithField("location", c.store.Location()).Debug("snapshot load shared")
	}
	return v.(*Snapshot), nil
}

// Invalidate drops every cached snapshot of the store
func (c *SnapshotCache) Invalidate() {
	prefix := c.store.Location() + "|"
	for k := range c.mem.Items() {
		if strings.HasPrefix(k, prefix) {
			c.mem.Delete(k)
		}
	}
}

// Len reports the number of cached snapshots
func (c *SnapshotCache) Len() int {
	return c.mem.ItemCount()
}
