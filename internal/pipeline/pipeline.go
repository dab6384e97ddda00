// Package pipeline runs the Graph Builder end to end: read the input table,
// build the graph and persist the three tables with a manifest.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/addrlinks/internal/config"
	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/graph"
	"github.com/rohankatakam/addrlinks/internal/ingest"
	"github.com/rohankatakam/addrlinks/internal/models"
	"github.com/rohankatakam/addrlinks/internal/storage"
)

// Options configures one build run
type Options struct {
	InputPath                string
	MinContributorsAtAddress int
	IDScheme                 graph.IDScheme
}

// OptionsFromConfig reads the build section of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		InputPath:                cfg.Build.InputPath,
		MinContributorsAtAddress: cfg.Build.MinContributorsAtAddress,
		IDScheme:                 graph.IDScheme(cfg.Build.IDScheme),
	}
}

// Result describes a finished run
type Result struct {
	Manifest *models.BuildManifest
	Duration time.Duration
}

// Run executes one build and replaces the stored tables. Any error leaves
// the previously stored tables untouched.
func Run(ctx context.Context, store storage.Store, opts Options, logger *logrus.Logger) (*Result, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.MinContributorsAtAddress == 0 {
		opts.MinContributorsAtAddress = graph.DefaultMinContributorsAtAddress
	}

	start := time.Now()
	log := logger.WithFields(logrus.Fields{
		"input":            opts.InputPath,
		"min_contributors": opts.MinContributorsAtAddress,
		"store":            store.Location(),
	})
	log.Info("build started")

	batch, err := ingest.ReadFile(opts.InputPath)
	if err != nil {
		log.WithError(err).Error("read input failed")
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.InternalErrorf("build cancelled: %v", err)
	}

	builder := graph.NewBuilder(graph.Options{
		MinContributorsAtAddress: opts.MinContributorsAtAddress,
		IDScheme:                 opts.IDScheme,
	})
	ds, err := builder.Build(batch.Records)
	if err != nil {
		log.WithError(err).Error("graph build failed")
		return nil, err
	}

	m := ds.Manifest
	m.RunID = uuid.NewString()
	m.BuiltAt = time.Now().UTC()
	m.InputPath = batch.Path
	m.InputFingerprint = batch.Fingerprint

	if err := store.SaveDataset(ctx, ds); err != nil {
		log.WithError(err).Error("save tables failed")
		return nil, err
	}

	res := &Result{Manifest: m, Duration: time.Since(start)}
	log.WithFields(logrus.Fields{
		"run_id":       m.RunID,
		"addresses":    m.AddressCount,
		"contributors": m.ContributorCount,
		"edges":        m.EdgeCount,
		"duration":     res.Duration,
	}).Info("build finished")
	return res, nil
}

// EnsureBuilt runs a build with the configured defaults when the store has
// no tables yet. It reports whether a build ran.
func EnsureBuilt(ctx context.Context, cfg *config.Config, store storage.Store, logger *logrus.Logger) (bool, error) {
	exists, err := store.Exists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err := Run(ctx, store, OptionsFromConfig(cfg), logger); err != nil {
		return false, err
	}
	return true, nil
}
