package tools

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/addrlinks/internal/cache"
	"github.com/rohankatakam/addrlinks/internal/filter"
	"github.com/rohankatakam/addrlinks/internal/graph"
)

// SnapshotSource yields the current dataset snapshot
type SnapshotSource interface {
	Get(ctx context.Context) (*cache.Snapshot, error)
}

// Deps are shared by every tool
type Deps struct {
	Snapshots              SnapshotSource
	Results                cache.ResultCache // optional
	Logger                 *logrus.Logger
	DefaultMinContributors int
	TopLimit               int
}

func (d Deps) logger() *logrus.Logger {
	if d.Logger == nil {
		return logrus.StandardLogger()
	}
	return d.Logger
}

// filterArgs are the filter inputs common to all tools
type filterArgs struct {
	types           []string
	minContributors int
	minAmount       string
	maxAmount       string
}

// apply resolves the args against the current snapshot and filters
// through the result cache
func (d Deps) apply(ctx context.Context, args filterArgs) (*cache.Snapshot, *filter.View, error) {
	snap, err := d.Snapshots.Get(ctx)
	if err != nil {
		return nil, nil, err
	}

	params := filter.Params{
		ContributorTypes:          args.types,
		MinContributorsPerAddress: args.minContributors,
	}
	if params.MinContributorsPerAddress == 0 {
		params.MinContributorsPerAddress = d.DefaultMinContributors
	}
	if params.MinContributorsPerAddress == 0 {
		params.MinContributorsPerAddress = graph.DefaultMinContributorsAtAddress
	}
	params.AmountRange, err = filter.ParseRange(snap.Dataset.Nodes, args.minAmount, args.maxAmount)
	if err != nil {
		return nil, nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}

	key := cache.ResultKey(snap.Fingerprint, params)
	view, _, err := cache.Lookup(ctx, d.Results, key, d.logger(), func() (*filter.View, error) {
		return filter.Apply(snap.Dataset.Nodes, snap.Dataset.Edges, params)
	})
	if err != nil {
		return nil, nil, err
	}
	return snap, view, nil
}
