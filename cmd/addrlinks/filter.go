package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/addrlinks/internal/cache"
	"github.com/rohankatakam/addrlinks/internal/filter"
	"github.com/rohankatakam/addrlinks/internal/output"
	"github.com/rohankatakam/addrlinks/internal/storage"
)

type filterFlags struct {
	types           []string
	allTypes        bool
	minContributors int
	minAmount       string
	maxAmount       string
	limit           int
}

var (
	filterOpts  filterFlags
	summaryOpts filterFlags
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Filter the stored network and list the remaining links",
	Long: `Apply the display filters to the stored tables and print the summary,
the ranked shared addresses and every remaining contributor -> address link.

Without --types the contributor types equal to "Individual" are selected,
or every type when the data has none. --all-types lifts the restriction.

Examples:
  addrlinks filter --min-contributors 3
  addrlinks filter --types PAC,Individual --min-amount 1000 -o csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFilter(cmd, &filterOpts, true)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show counts and the top shared addresses for a filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFilter(cmd, &summaryOpts, false)
	},
}

func init() {
	for _, c := range []struct {
		cmd  *cobra.Command
		opts *filterFlags
	}{{filterCmd, &filterOpts}, {summaryCmd, &summaryOpts}} {
		fl := c.cmd.Flags()
		fl.StringSliceVar(&c.opts.types, "types", nil, "contributor types to keep (exact match)")
		fl.BoolVar(&c.opts.allTypes, "all-types", false, "keep every contributor type")
		fl.IntVar(&c.opts.minContributors, "min-contributors", 0, "minimum distinct contributors per address (default: filter.default_min_contributors)")
		fl.StringVar(&c.opts.minAmount, "min-amount", "", "lower bound on node total amount (default: smallest total)")
		fl.StringVar(&c.opts.maxAmount, "max-amount", "", "upper bound on node total amount (default: largest total)")
		fl.IntVar(&c.opts.limit, "limit", 0, "number of top shared addresses (default: filter.top_limit)")
	}
}

func runFilter(cmd *cobra.Command, opts *filterFlags, withEdges bool) error {
	ctx := cmd.Context()

	f, err := formatter()
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := cache.NewSnapshotCache(store, 0, logger).Get(ctx)
	if err != nil {
		return err
	}

	params := filter.Params{
		ContributorTypes:          opts.types,
		MinContributorsPerAddress: opts.minContributors,
	}
	if len(params.ContributorTypes) == 0 && !opts.allTypes {
		_, params.ContributorTypes = filter.DefaultTypes(snap.Dataset.Nodes)
	}
	if params.MinContributorsPerAddress == 0 {
		params.MinContributorsPerAddress = cfg.Filter.DefaultMinContributors
	}
	params.AmountRange, err = filter.ParseRange(snap.Dataset.Nodes, opts.minAmount, opts.maxAmount)
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}

	results, err := cache.NewResultCache(ctx, cfg.Cache, logger)
	if err != nil {
		logger.WithError(err).Warn("result cache unavailable, filtering without it")
		results = nil
	}
	if results != nil {
		defer results.Close()
	}

	view, hit, err := cache.Lookup(ctx, results, cache.ResultKey(snap.Fingerprint, params), logger,
		func() (*filter.View, error) {
			return filter.Apply(snap.Dataset.Nodes, snap.Dataset.Edges, params)
		})
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"nodes":  len(view.Nodes),
		"edges":  len(view.Edges),
		"cached": hit,
	}).Debug("filter applied")

	limit := opts.limit
	if limit <= 0 {
		limit = cfg.Filter.TopLimit
	}
	report := output.NewReport(snap.Fingerprint, params, view, limit, withEdges)
	return f.FormatReport(report, os.Stdout)
}
