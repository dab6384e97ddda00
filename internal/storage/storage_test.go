package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/addrlinks/internal/config"
	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/graph"
	"github.com/rohankatakam/addrlinks/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func testDataset(t *testing.T) *models.Dataset {
	t.Helper()
	amount := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	ds, err := graph.Build([]models.ContributionRecord{
		{ContributorName: "Alice", ContributorType: "Individual", FullAddress: "1 Main St, Springfield", Amount: amount("100.25")},
		{ContributorName: "Bob", ContributorType: "Individual", FullAddress: "1 Main St, Springfield", Amount: amount("50")},
		{ContributorName: "Acme \"PAC\"", ContributorType: "PAC", FullAddress: "1 Main St, Springfield", Amount: amount("1200.10")},
		{ContributorName: "Carol", ContributorType: "Committee", FullAddress: "2 Oak Ave", Amount: amount("200")},
		{ContributorName: "Dan", ContributorType: "Individual", FullAddress: "2 Oak Ave", Amount: amount("0.99")},
	}, 2)
	require.NoError(t, err)
	ds.Manifest.RunID = "run-1"
	ds.Manifest.BuiltAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ds.Manifest.InputPath = "data/input.csv"
	ds.Manifest.InputFingerprint = "abc123"
	return ds
}

func assertSameTables(t *testing.T, want, got *models.Dataset) {
	t.Helper()
	require.Len(t, got.Nodes, len(want.Nodes))
	for i := range want.Nodes {
		w, g := want.Nodes[i], got.Nodes[i]
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.Label, g.Label)
		assert.Equal(t, w.Type, g.Type)
		assert.Equal(t, w.ContribType, g.ContribType)
		assert.True(t, w.TotalAmount.Equal(g.TotalAmount), "node %s amount %s != %s", w.ID, w.TotalAmount, g.TotalAmount)
		assert.Equal(t, w.TxCount, g.TxCount)
		assert.Equal(t, w.Contributors, g.Contributors)
	}

	require.Len(t, got.Edges, len(want.Edges))
	for i := range want.Edges {
		w, g := want.Edges[i], got.Edges[i]
		assert.Equal(t, w.Source, g.Source)
		assert.Equal(t, w.Target, g.Target)
		assert.Equal(t, w.EdgeType, g.EdgeType)
		assert.Equal(t, w.Address, g.Address)
		assert.Equal(t, w.TxCount, g.TxCount)
		assert.True(t, w.TotalAmount.Equal(g.TotalAmount))
	}

	require.Len(t, got.TopShared, len(want.TopShared))
	for i := range want.TopShared {
		assert.Equal(t, want.TopShared[i].GroupID, got.TopShared[i].GroupID)
		assert.Equal(t, want.TopShared[i].Contributors, got.TopShared[i].Contributors)
		assert.True(t, want.TopShared[i].TotalAmount.Equal(got.TopShared[i].TotalAmount))
	}
}

func TestCSVStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "out")
	store, err := NewCSVStore(dir, testLogger())
	require.NoError(t, err)

	exists, err := store.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	ds := testDataset(t)
	require.NoError(t, store.SaveDataset(ctx, ds))

	exists, err = store.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := store.LoadDataset(ctx)
	require.NoError(t, err)
	assertSameTables(t, ds, loaded)

	require.NotNil(t, loaded.Manifest)
	assert.Equal(t, "run-1", loaded.Manifest.RunID)
	assert.Equal(t, 5, loaded.Manifest.RecordCount)

	// No temp files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"nodes.csv", "edges.csv", "top_shared_addresses.csv", "manifest.yaml"}, names)
}

func TestCSVStore_ExactHeaders(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewCSVStore(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.SaveDataset(ctx, testDataset(t)))

	firstLine := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		for i, b := range data {
			if b == '\n' {
				return string(data[:i])
			}
		}
		return string(data)
	}

	assert.Equal(t, "id,label,type,contrib_type,total_amount,tx_count", firstLine("nodes.csv"))
	assert.Equal(t, "source,target,edge_type,address,tx_count,total_amount", firstLine("edges.csv"))
	assert.Equal(t, "group_id,full_address,contributors,total_amount,tx_count", firstLine("top_shared_addresses.csv"))
}

func TestCSVStore_SaveIsByteIdentical(t *testing.T) {
	ctx := context.Background()
	dirA, dirB := t.TempDir(), t.TempDir()

	for _, dir := range []string{dirA, dirB} {
		store, err := NewCSVStore(dir, testLogger())
		require.NoError(t, err)
		require.NoError(t, store.SaveDataset(ctx, testDataset(t)))
	}

	for _, name := range []string{"nodes.csv", "edges.csv", "top_shared_addresses.csv"} {
		a, err := os.ReadFile(filepath.Join(dirA, name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(dirB, name))
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), name)
	}
}

func TestCSVStore_LoadsForeignTables(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Column order and float formatting as produced by a dataframe export
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	write("nodes.csv", "id,label,type,contrib_type,total_amount,tx_count\n"+
		"person:0,Alice,contributor,Individual,100.0,1\n"+
		"person:1,Bob,contributor,Individual,50.0,1\n"+
		"addr:0,1 Main St,address,,150.0,2\n")
	write("edges.csv", "source,target,edge_type,address,tx_count,total_amount\n"+
		"person:0,addr:0,at_address,1 Main St,1,100.0\n"+
		"person:1,addr:0,at_address,1 Main St,1,50.0\n")
	write("top_shared_addresses.csv", "group_id,full_address,contributors,total_amount,tx_count\n"+
		"0,1 Main St,2,150.0,2.0\n")

	store, err := NewCSVStore(dir, testLogger())
	require.NoError(t, err)
	ds, err := store.LoadDataset(ctx)
	require.NoError(t, err)

	assert.Nil(t, ds.Manifest)
	require.Len(t, ds.Nodes, 3)
	assert.Nil(t, ds.Nodes[2].ContribType)
	require.NotNil(t, ds.Nodes[2].Contributors)
	assert.Equal(t, 2, *ds.Nodes[2].Contributors)
	assert.Equal(t, 2, ds.TopShared[0].TxCount)
}

func TestCSVStore_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing tables", func(t *testing.T) {
		store, err := NewCSVStore(t.TempDir(), testLogger())
		require.NoError(t, err)
		_, err = store.LoadDataset(ctx)
		require.Error(t, err)
		assert.True(t, errors.IsInputNotFound(err))
		assert.Contains(t, err.Error(), "addrlinks build")

		_, err = store.Fingerprint(ctx)
		assert.True(t, errors.IsInputNotFound(err))
	})

	t.Run("missing column", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.csv"), []byte("id,label\n"), 0644))
		store, err := NewCSVStore(dir, testLogger())
		require.NoError(t, err)
		_, err = store.LoadDataset(ctx)
		require.Error(t, err)
		assert.True(t, errors.IsMissingField(err))
	})

	t.Run("bad amount", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.csv"),
			[]byte("id,label,type,contrib_type,total_amount,tx_count\naddr:0,x,address,,lots,1\n"), 0644))
		store, err := NewCSVStore(dir, testLogger())
		require.NoError(t, err)
		_, err = store.LoadDataset(ctx)
		require.Error(t, err)
		assert.True(t, errors.IsDataFormat(err))
	})

	t.Run("huge exponent", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.csv"),
			[]byte("id,label,type,contrib_type,total_amount,tx_count\naddr:0,x,address,,1e50000000,1\n"), 0644))
		store, err := NewCSVStore(dir, testLogger())
		require.NoError(t, err)
		_, err = store.LoadDataset(ctx)
		require.Error(t, err)
		assert.True(t, errors.IsDataFormat(err))
	})
}

func TestCSVStore_FingerprintChangesOnSave(t *testing.T) {
	ctx := context.Background()
	store, err := NewCSVStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	ds := testDataset(t)
	require.NoError(t, store.SaveDataset(ctx, ds))
	first, err := store.Fingerprint(ctx)
	require.NoError(t, err)

	ds.Nodes = ds.Nodes[:1]
	require.NoError(t, store.SaveDataset(ctx, ds))
	second, err := store.Fingerprint(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCSVStore_FailedSwapKeepsOldTables(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewCSVStore(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.SaveDataset(ctx, testDataset(t)))

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return string(data)
	}
	oldNodes, oldEdges, oldManifest := read("nodes.csv"), read("edges.csv"), read(ManifestFile)

	next, err := graph.Build([]models.ContributionRecord{
		{ContributorName: "Zed", ContributorType: "Individual", FullAddress: "9 Elm St", Amount: decimal.NewFromInt(5)},
		{ContributorName: "Yan", ContributorType: "Individual", FullAddress: "9 Elm St", Amount: decimal.NewFromInt(6)},
	}, 2)
	require.NoError(t, err)
	next.Manifest.RunID = "run-2"

	// The nodes table swaps in, then the new edges table refuses once
	refused := false
	store.rename = func(oldpath, newpath string) error {
		if !refused && newpath == filepath.Join(dir, "edges.csv") {
			refused = true
			return fmt.Errorf("disk full")
		}
		return os.Rename(oldpath, newpath)
	}
	err = store.SaveDataset(ctx, next)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replace edges table")

	assert.Equal(t, oldNodes, read("nodes.csv"))
	assert.Equal(t, oldEdges, read("edges.csv"))
	assert.Equal(t, oldManifest, read(ManifestFile))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"nodes.csv", "edges.csv", "top_shared_addresses.csv", "manifest.yaml"}, names)

	store.rename = os.Rename
	loaded, err := store.LoadDataset(ctx)
	require.NoError(t, err)
	assertSameTables(t, testDataset(t), loaded)
}

func TestCSVStore_SaveRefusesNonFileTable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewCSVStore(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.SaveDataset(ctx, testDataset(t)))
	oldNodes, err := os.ReadFile(filepath.Join(dir, "nodes.csv"))
	require.NoError(t, err)

	edges := filepath.Join(dir, "edges.csv")
	require.NoError(t, os.Remove(edges))
	require.NoError(t, os.MkdirAll(filepath.Join(edges, "sub"), 0755))

	ds := testDataset(t)
	ds.Nodes = ds.Nodes[:1]
	err = store.SaveDataset(ctx, ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a regular file")

	nodes, err := os.ReadFile(filepath.Join(dir, "nodes.csv"))
	require.NoError(t, err)
	assert.Equal(t, string(oldNodes), string(nodes))
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:", testLogger())
	require.NoError(t, err)
	defer store.Close()

	exists, err := store.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.LoadDataset(ctx)
	assert.True(t, errors.IsInputNotFound(err))

	ds := testDataset(t)
	require.NoError(t, store.SaveDataset(ctx, ds))

	loaded, err := store.LoadDataset(ctx)
	require.NoError(t, err)
	assertSameTables(t, ds, loaded)
	require.NotNil(t, loaded.Manifest)
	assert.Equal(t, "run-1", loaded.Manifest.RunID)
	assert.True(t, ds.Manifest.BuiltAt.Equal(loaded.Manifest.BuiltAt))

	fp, err := store.Fingerprint(ctx)
	require.NoError(t, err)
	assert.Contains(t, fp, "run-1")
}

func TestSQLiteStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:", testLogger())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SaveDataset(ctx, testDataset(t)))

	smaller, err := graph.Build([]models.ContributionRecord{
		{ContributorName: "X", ContributorType: "Individual", FullAddress: "9 Elm", Amount: decimal.NewFromInt(1)},
		{ContributorName: "Y", ContributorType: "Individual", FullAddress: "9 Elm", Amount: decimal.NewFromInt(2)},
	}, 2)
	require.NoError(t, err)
	smaller.Manifest = nil
	require.NoError(t, store.SaveDataset(ctx, smaller))

	loaded, err := store.LoadDataset(ctx)
	require.NoError(t, err)
	assertSameTables(t, smaller, loaded)
	require.NotNil(t, loaded.Manifest, "a manifest row is synthesized")
	assert.NotEmpty(t, loaded.Manifest.RunID)
	assert.Equal(t, 2, loaded.Manifest.ContributorCount)
}

func TestOpen(t *testing.T) {
	cfg := config.Default()
	cfg.Build.OutputDir = t.TempDir()

	store, err := Open(cfg, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &CSVStore{}, store)

	cfg.Storage.Type = "sqlite"
	cfg.Storage.LocalPath = filepath.Join(t.TempDir(), "db", "graph.db")
	store, err = Open(cfg, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, store)
	require.NoError(t, store.Close())

	cfg.Storage.Type = "mongo"
	_, err = Open(cfg, testLogger())
	require.Error(t, err)
}
