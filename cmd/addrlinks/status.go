package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/addrlinks/internal/cli"
	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the tables live and how they were built",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	ds, err := store.LoadDataset(ctx)
	if errors.IsInputNotFound(err) {
		fmt.Fprintf(os.Stderr, "No tables at %s (run 'addrlinks build')\n", store.Location())
		return nil
	}
	if err != nil {
		return err
	}
	if ds.Manifest == nil {
		fmt.Fprintf(os.Stderr, "Tables at %s have no build manifest\n", store.Location())
		return nil
	}
	if err := f.FormatManifest(ds.Manifest, os.Stdout); err != nil {
		return err
	}

	warning, err := cli.CheckFreshness(ctx, store, cfg.Build.InputPath)
	if err != nil {
		logger.WithError(err).Debug("freshness check failed")
	} else if warning != "" {
		fmt.Fprintln(os.Stderr, warning)
	}
	return nil
}
