package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/addrlinks/internal/config"
	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/models"
)

// Table names shared by every store
const (
	TableNodes     = "nodes"
	TableEdges     = "edges"
	TableTopShared = "top_shared_addresses"
)

// rebuildHint is attached to every not-found error on load
const rebuildHint = "run `addrlinks build` or `addrlinks ensure`"

// Store defines the storage interface for the persisted graph tables
type Store interface {
	// SaveDataset replaces all three tables. Readers see either the old
	// tables or the new ones, never a mix.
	SaveDataset(ctx context.Context, ds *models.Dataset) error

	// LoadDataset reads the persisted tables; missing tables are an
	// InputNotFoundError
	LoadDataset(ctx context.Context) (*models.Dataset, error)

	// Exists reports whether all three tables are present
	Exists(ctx context.Context) (bool, error)

	// Fingerprint changes whenever the persisted tables change
	Fingerprint(ctx context.Context) (string, error)

	// Location describes where the tables live, for logs and cache keys
	Location() string

	// Close connection
	Close() error
}

// Open creates the store selected by cfg.Storage.Type
func Open(cfg *config.Config, logger *logrus.Logger) (Store, error) {
	switch cfg.Storage.Type {
	case "", "csv":
		return NewCSVStore(cfg.Build.OutputDir, logger)
	case "sqlite":
		return NewSQLiteStore(cfg.Storage.LocalPath, logger)
	case "postgres":
		return NewPostgresStore(cfg.Storage.PostgresDSN, logger)
	default:
		return nil, errors.ConfigErrorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// restoreAddressCounts fills the address-only contributors attribute from
// the edge table when the store did not persist it
func restoreAddressCounts(ds *models.Dataset) {
	sources := make(map[string]map[string]struct{})
	for _, e := range ds.Edges {
		if sources[e.Target] == nil {
			sources[e.Target] = make(map[string]struct{})
		}
		sources[e.Target][e.Source] = struct{}{}
	}
	for i := range ds.Nodes {
		n := &ds.Nodes[i]
		if n.Type == models.NodeTypeAddress && n.Contributors == nil {
			count := len(sources[n.ID])
			n.Contributors = &count
		}
	}
}

func notFound(location, table string) error {
	return errors.InputNotFoundError(fmt.Sprintf("%s (%s)", location, table), rebuildHint).
		WithContext("table", table)
}
