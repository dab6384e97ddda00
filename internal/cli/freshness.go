package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/ingest"
	"github.com/rohankatakam/addrlinks/internal/storage"
)

// CheckFreshness compares the stored build with the input file it should
// have been built from. It returns a warning for the user, empty when the
// tables are current.
func CheckFreshness(ctx context.Context, store storage.Store, inputPath string) (warning string, err error) {
	ds, err := store.LoadDataset(ctx)
	if errors.IsInputNotFound(err) {
		return "No tables found. Run 'addrlinks build' to create them", nil
	}
	if err != nil {
		return "", err
	}

	m := ds.Manifest
	if m == nil || m.InputFingerprint == "" {
		return "Tables have no build manifest. Run 'addrlinks build' to record one", nil
	}

	if filepath.Clean(m.InputPath) != filepath.Clean(inputPath) {
		return fmt.Sprintf("Tables were built from %s, not %s. Run 'addrlinks build' to rebuild",
			m.InputPath, inputPath), nil
	}

	current, err := ingest.FingerprintFile(inputPath)
	if errors.IsInputNotFound(err) {
		return fmt.Sprintf("Input %s no longer exists; tables are from a build %s",
			inputPath, humanize.Time(m.BuiltAt)), nil
	}
	if err != nil {
		return "", err
	}

	if current != m.InputFingerprint {
		return fmt.Sprintf("Input %s changed since the last build (%s). Run 'addrlinks build' to update",
			inputPath, humanize.Time(m.BuiltAt)), nil
	}
	return "", nil
}
