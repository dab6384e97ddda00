package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/addrlinks/internal/config"
	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/graph"
	"github.com/rohankatakam/addrlinks/internal/storage"
)

const contributions = `Contributor Name,Contributor Type,full_address,Amount,Date
Alice,Individual,"1 Main St, Springfield","$1,000.00",2024-01-05
Bob,Individual,"1 Main St, Springfield",$250,2024-02-10
Alice,Individual,"1 Main St, Springfield",$100,2024-03-01
Carol,PAC,"9 Elm St",$5000,2024-01-20
Alice,Individual,"9 Elm St",$20,2024-01-21
Dan,Individual,"4 Lone Rd",$75,2024-04-02
`

func writeInput(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "contributions.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewCSVStore(filepath.Join(t.TempDir(), "out"), quietLogger())
	require.NoError(t, err)
	return store
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	input := writeInput(t, t.TempDir(), contributions)
	store := newStore(t)

	res, err := Run(ctx, store, Options{InputPath: input, MinContributorsAtAddress: 2}, quietLogger())
	require.NoError(t, err)

	m := res.Manifest
	assert.NotEmpty(t, m.RunID)
	assert.False(t, m.BuiltAt.IsZero())
	assert.Equal(t, input, m.InputPath)
	assert.Len(t, m.InputFingerprint, 64)
	assert.Equal(t, 6, m.RecordCount)
	assert.Equal(t, 2, m.AddressCount)
	assert.Equal(t, 3, m.ContributorCount)
	assert.Equal(t, 4, m.EdgeCount)

	ds, err := store.LoadDataset(ctx)
	require.NoError(t, err)
	assert.Len(t, ds.AddressNodes(), 2)
	assert.Len(t, ds.ContributorNodes(), 3)
	assert.Len(t, ds.Edges, 4)
	require.NotNil(t, ds.Manifest)
	assert.Equal(t, m.RunID, ds.Manifest.RunID)

	// Dan's address has a single contributor and is dropped
	for _, n := range ds.Nodes {
		assert.NotEqual(t, "Dan", n.Label)
		assert.NotEqual(t, "4 Lone Rd", n.Label)
	}
}

func TestRun_HashIDs(t *testing.T) {
	input := writeInput(t, t.TempDir(), contributions)
	store := newStore(t)

	_, err := Run(context.Background(), store, Options{
		InputPath:                input,
		MinContributorsAtAddress: 2,
		IDScheme:                 graph.IDSchemeContentHash,
	}, quietLogger())
	require.NoError(t, err)

	ds, err := store.LoadDataset(context.Background())
	require.NoError(t, err)
	for _, n := range ds.AddressNodes() {
		assert.Len(t, n.ID, len("addr:")+12)
	}
}

func TestRun_FailureKeepsPreviousTables(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newStore(t)

	first, err := Run(ctx, store, Options{InputPath: writeInput(t, dir, contributions)}, quietLogger())
	require.NoError(t, err)

	bad := contributions + "Eve,Individual,\"9 Elm St\",N/A,2024-05-01\n"
	_, err = Run(ctx, store, Options{InputPath: writeInput(t, dir, bad)}, quietLogger())
	require.Error(t, err)
	assert.True(t, errors.IsDataFormat(err))

	ds, err := store.LoadDataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Manifest.RunID, ds.Manifest.RunID)
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := Run(ctx, store, Options{InputPath: filepath.Join(t.TempDir(), "missing.csv")}, quietLogger())
	assert.True(t, errors.IsInputNotFound(err))

	input := writeInput(t, t.TempDir(), "Contributor Name,full_address\nAlice,1 Main St\n")
	_, err = Run(ctx, store, Options{InputPath: input}, quietLogger())
	assert.True(t, errors.IsMissingField(err))

	input = writeInput(t, t.TempDir(), contributions)
	_, err = Run(ctx, store, Options{InputPath: input, MinContributorsAtAddress: -1}, quietLogger())
	assert.True(t, errors.IsValidation(err))

	exists, err := store.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists, "failed builds write nothing")
}

func TestEnsureBuilt(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Build.InputPath = writeInput(t, t.TempDir(), contributions)
	store := newStore(t)

	built, err := EnsureBuilt(ctx, cfg, store, quietLogger())
	require.NoError(t, err)
	assert.True(t, built)

	fp, err := store.Fingerprint(ctx)
	require.NoError(t, err)

	built, err = EnsureBuilt(ctx, cfg, store, quietLogger())
	require.NoError(t, err)
	assert.False(t, built, "existing tables are left alone")

	again, err := store.Fingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, fp, again)
}

func TestEnsureBuilt_MissingInput(t *testing.T) {
	cfg := config.Default()
	cfg.Build.InputPath = filepath.Join(t.TempDir(), "nope.csv")

	built, err := EnsureBuilt(context.Background(), cfg, newStore(t), quietLogger())
	assert.False(t, built)
	assert.True(t, errors.IsInputNotFound(err))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Build.IDScheme = "hash"
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, graph.IDSchemeContentHash, opts.IDScheme)
	assert.Equal(t, 2, opts.MinContributorsAtAddress)
}
