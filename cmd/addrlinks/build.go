package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/addrlinks/internal/cli"
	"github.com/rohankatakam/addrlinks/internal/config"
	"github.com/rohankatakam/addrlinks/internal/graph"
	"github.com/rohankatakam/addrlinks/internal/pipeline"
	"github.com/rohankatakam/addrlinks/internal/storage"
)

var (
	buildInput           string
	buildOutputDir       string
	buildMinContributors int
	buildIDScheme        string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the contributor/address tables from a contributions CSV",
	Long: `Read the contributions CSV, group records by exact full address, keep the
addresses with at least --min-contributors distinct contributors, and replace
the stored nodes, edges and top shared address tables.

A failed build leaves the previously stored tables untouched.

Examples:
  addrlinks build
  addrlinks build --input contributions.csv --min-contributors 3
  addrlinks build --id-scheme hash -o json`,
	RunE: runBuild,
}

var ensureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Build the tables with configured defaults if they do not exist yet",
	RunE:  runEnsure,
}

func init() {
	buildCmd.Flags().StringVar(&buildInput, "input", "", "contributions CSV (default: build.input_path)")
	buildCmd.Flags().StringVar(&buildOutputDir, "output-dir", "", "directory for the CSV tables (default: build.output_dir)")
	buildCmd.Flags().IntVar(&buildMinContributors, "min-contributors", 0, "minimum distinct contributors per address (default: build.min_contributors_at_address)")
	buildCmd.Flags().StringVar(&buildIDScheme, "id-scheme", "", "node id scheme: sequential or hash (default: build.id_scheme)")
}

// applyBuildFlags overlays explicitly set flags on the loaded config
func applyBuildFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("input") {
		cfg.Build.InputPath = buildInput
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Build.OutputDir = buildOutputDir
	}
	if cmd.Flags().Changed("min-contributors") {
		cfg.Build.MinContributorsAtAddress = buildMinContributors
	}
	if cmd.Flags().Changed("id-scheme") {
		cfg.Build.IDScheme = buildIDScheme
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	applyBuildFlags(cmd)

	result := cfg.Validate(config.ValidationContextBuild)
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	if err := result.Err(); err != nil {
		return err
	}

	f, err := formatter()
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := pipeline.Run(ctx, store, pipeline.Options{
		InputPath:                cfg.Build.InputPath,
		MinContributorsAtAddress: cfg.Build.MinContributorsAtAddress,
		IDScheme:                 graph.IDScheme(cfg.Build.IDScheme),
	}, logger)
	if err != nil {
		return err
	}
	return f.FormatManifest(res.Manifest, os.Stdout)
}

func runEnsure(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := cfg.Validate(config.ValidationContextBuild).Err(); err != nil {
		return err
	}

	store, err := storage.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	built, err := pipeline.EnsureBuilt(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	if built {
		logger.WithField("location", store.Location()).Info("tables built")
		return nil
	}

	logger.WithField("location", store.Location()).Info("tables already present")
	if warning, err := cli.CheckFreshness(ctx, store, cfg.Build.InputPath); err == nil && warning != "" {
		logger.Warn(warning)
	}
	return nil
}
