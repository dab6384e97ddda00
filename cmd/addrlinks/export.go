package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/addrlinks/internal/config"
	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/graph"
	"github.com/rohankatakam/addrlinks/internal/storage"
	"github.com/rohankatakam/addrlinks/internal/validation"
)

var (
	exportBatchSize int
	exportVerify    bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Replace the contents of a Neo4j database with the stored network",
	Long: `Load the stored tables and write them to Neo4j as (:Contributor)-[:AT_ADDRESS]->(:Address).
Existing Contributor and Address nodes are removed first.

The password comes from NEO4J_PASSWORD, the config file, or the OS keychain
(addrlinks config set-secret neo4j-password).`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().IntVar(&exportBatchSize, "batch-size", 0, "rows per UNWIND statement (default: neo4j.batch_size)")
	exportCmd.Flags().BoolVar(&exportVerify, "verify", true, "compare node and edge counts in Neo4j with the stored tables")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	result := cfg.Validate(config.ValidationContextExport)
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	if err := result.Err(); err != nil {
		return err
	}

	store, err := storage.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ds, err := store.LoadDataset(ctx)
	if err != nil {
		return err
	}

	backend, err := graph.NewNeo4jBackend(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database)
	if err != nil {
		return err
	}
	defer backend.Close(ctx)

	batch := exportBatchSize
	if batch <= 0 {
		batch = cfg.Neo4j.BatchSize
	}
	stats, err := graph.Export(ctx, backend, ds, batch)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"nodes":    stats.Nodes,
		"edges":    stats.Edges,
		"batches":  stats.Batches,
		"duration": stats.Duration,
	}).Info("export complete")
	fmt.Printf("Exported %d nodes and %d edges to %s\n", stats.Nodes, stats.Edges, cfg.Neo4j.URI)

	if !exportVerify {
		return nil
	}
	v := validation.NewConsistencyValidator(backend)
	results, err := v.ValidateAfterExport(ctx, ds)
	if err != nil {
		return err
	}
	v.LogResults(results)
	if !validation.AllPassed(results) {
		return errors.New(errors.ErrorTypeExternal, errors.SeverityMedium, "neo4j counts do not match the stored tables")
	}
	return nil
}
