package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/addrlinks/internal/cache"
	"github.com/rohankatakam/addrlinks/internal/config"
	"github.com/rohankatakam/addrlinks/internal/pipeline"
	"github.com/rohankatakam/addrlinks/internal/storage"
)

const contributions = `Contributor Name,Contributor Type,full_address,Amount,Date
Alice,Individual,"1 Main St","$1,000.00",2024-01-05
Bob,Individual,"1 Main St",$250,2024-02-10
Alice,Individual,"1 Main St",$100,2024-03-01
Carol,PAC,"9 Elm St",$5000,2024-01-20
Alice,Individual,"9 Elm St",$20,2024-01-21
Erin,Individual,"9 Elm St",$30,2024-01-22
Dan,Individual,"4 Lone Rd",$75,2024-04-02
`

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestServer builds the sample dataset unless build is false
func newTestServer(t *testing.T, build bool, mutate func(cfg *config.Config)) *Server {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "contributions.csv")
	require.NoError(t, os.WriteFile(input, []byte(contributions), 0644))

	cfg := config.Default()
	cfg.Build.InputPath = input
	cfg.Build.OutputDir = filepath.Join(dir, "out")
	cfg.Server.RateLimit = 0
	cfg.Server.Watch = false
	if mutate != nil {
		mutate(cfg)
	}

	logger := quietLogger()
	store, err := storage.NewCSVStore(cfg.Build.OutputDir, logger)
	require.NoError(t, err)
	if build {
		_, err = pipeline.Run(context.Background(), store, pipeline.OptionsFromConfig(cfg), logger)
		require.NoError(t, err)
	}
	return New(cfg, store, cache.NewMemoryResultCache(time.Minute), logger)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func labels(nodes []graphNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Label)
	}
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, true, nil)

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["dataset_loaded"])

	require.NoError(t, s.Reload(context.Background()))
	body = decode[map[string]any](t, do(t, s, http.MethodGet, "/health", ""))
	assert.Equal(t, true, body["dataset_loaded"])
	assert.NotEmpty(t, body["fingerprint"])
}

func TestGraph_Filters(t *testing.T) {
	s := newTestServer(t, true, nil)

	tests := []struct {
		name      string
		query     string
		wantNodes []string
		wantEdges int
	}{
		{
			name:      "defaults",
			query:     "",
			wantNodes: []string{"Alice", "Bob", "Carol", "Erin", "1 Main St", "9 Elm St"},
			wantEdges: 5,
		},
		{
			name:      "type filter leaves addresses",
			query:     "types=Individual",
			wantNodes: []string{"Alice", "Bob", "Erin", "1 Main St", "9 Elm St"},
			wantEdges: 4,
		},
		{
			name:      "several types",
			query:     "types=PAC&types=Individual",
			wantNodes: []string{"Alice", "Bob", "Carol", "Erin", "1 Main St", "9 Elm St"},
			wantEdges: 5,
		},
		{
			name:      "recounted threshold",
			query:     "min_contributors=3",
			wantNodes: []string{"Alice", "Bob", "Carol", "Erin", "9 Elm St"},
			wantEdges: 3,
		},
		{
			name:      "amount range",
			query:     "min_amount=100&max_amount=2000",
			wantNodes: []string{"Alice", "Bob", "1 Main St"},
			wantEdges: 2,
		},
		{
			name:      "open upper bound",
			query:     "min_amount=100",
			wantNodes: []string{"Alice", "Bob", "Carol", "1 Main St", "9 Elm St"},
			wantEdges: 4,
		},
		{
			name:      "nothing matches",
			query:     "min_contributors=10",
			wantNodes: []string{"Alice", "Bob", "Carol", "Erin"},
			wantEdges: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/graph?"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decode[graphResponse](t, rec)
			assert.Equal(t, tt.wantNodes, labels(resp.Nodes))
			assert.Len(t, resp.Edges, tt.wantEdges)
			assert.NotEmpty(t, resp.Fingerprint)
		})
	}
}

func TestGraph_Presentation(t *testing.T) {
	s := newTestServer(t, true, nil)

	resp := decode[graphResponse](t, do(t, s, http.MethodGet, "/api/graph", ""))
	byLabel := make(map[string]graphNode)
	for _, n := range resp.Nodes {
		byLabel[n.Label] = n
	}

	assert.Equal(t, "square", byLabel["1 Main St"].Shape)
	assert.Equal(t, "Address • 3 tx • $1,350", byLabel["1 Main St"].Title)
	assert.Equal(t, "dot", byLabel["Carol"].Shape)
	assert.Equal(t, "PAC • 1 tx • $5,000", byLabel["Carol"].Title)

	require.NotEmpty(t, resp.Edges)
	first := resp.Edges[0]
	assert.Equal(t, "1 Main St • 2 tx • $1,100", first.Title)
	assert.Equal(t, 2, first.Value)
}

func TestGraph_CachedOnRepeat(t *testing.T) {
	s := newTestServer(t, true, nil)

	first := decode[graphResponse](t, do(t, s, http.MethodGet, "/api/graph?types=Individual", ""))
	second := decode[graphResponse](t, do(t, s, http.MethodGet, "/api/graph?types=Individual", ""))
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, labels(first.Nodes), labels(second.Nodes))
}

func TestGraph_BadParams(t *testing.T) {
	s := newTestServer(t, true, nil)

	for _, q := range []string{
		"min_contributors=-1",
		"min_contributors=abc",
		"min_amount=abc",
		"min_amount=500&max_amount=100",
	} {
		t.Run(q, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/graph?"+q, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decode[errorResponse](t, rec)
			assert.Equal(t, "VALIDATION", body.Type)
		})
	}
}

func TestSummary(t *testing.T) {
	s := newTestServer(t, true, nil)

	rec := do(t, s, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[summaryResponse](t, rec)

	sum := resp.Summary
	assert.Equal(t, 2, sum.AddressesShown)
	assert.Equal(t, 4, sum.ContributorsShown)
	assert.Equal(t, 5, sum.EdgesShown)
	require.Len(t, sum.Top, 2)
	assert.Equal(t, "9 Elm St", sum.Top[0].Label)
	assert.Equal(t, 3, sum.Top[0].Contributors)
	assert.Equal(t, "1 Main St", sum.Top[1].Label)
	assert.Equal(t, 2, sum.Top[1].Links)
	assert.Equal(t, 3, sum.Top[1].TxCount)

	resp = decode[summaryResponse](t, do(t, s, http.MethodGet, "/api/summary?limit=1", ""))
	assert.Len(t, resp.Summary.Top, 1)

	rec = do(t, s, http.MethodGet, "/api/summary?limit=0", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/summary?limit=100000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestControls(t *testing.T) {
	s := newTestServer(t, true, nil)

	rec := do(t, s, http.MethodGet, "/api/controls", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[controlsResponse](t, rec)

	assert.Equal(t, []string{"Individual", "PAC"}, resp.ContributorTypes)
	assert.Equal(t, []string{"Individual"}, resp.DefaultTypes)
	require.NotNil(t, resp.AmountMin)
	assert.Equal(t, "30", resp.AmountMin.String())
	assert.Equal(t, "5050", resp.AmountMax.String())
	assert.Equal(t, 2, resp.MinContributorsFloor)
	assert.Equal(t, 3, resp.MinContributorsMax)
	assert.Equal(t, 2, resp.DefaultMinContributors)
	assert.Equal(t, 12, resp.TopLimit)
	require.NotNil(t, resp.Manifest)
	assert.Equal(t, 7, resp.Manifest.RecordCount)
}

func TestNoDataset(t *testing.T) {
	s := newTestServer(t, false, nil)

	for _, path := range []string{"/api/graph", "/api/summary", "/api/controls"} {
		rec := do(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		body := decode[errorResponse](t, rec)
		assert.Equal(t, "INPUT_NOT_FOUND", body.Type)
		assert.Contains(t, body.Error, "addrlinks build")
	}

	rec := do(t, s, http.MethodPost, "/api/rebuild", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/graph", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRebuild(t *testing.T) {
	s := newTestServer(t, true, nil)

	before := decode[graphResponse](t, do(t, s, http.MethodGet, "/api/graph", ""))

	rec := do(t, s, http.MethodPost, "/api/rebuild", `{"min_contributors_at_address": 3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[rebuildResponse](t, rec)
	require.NotNil(t, resp.Manifest)
	assert.Equal(t, 3, resp.Manifest.MinContributorsAtAddress)
	assert.Equal(t, 1, resp.Manifest.AddressCount)

	after := decode[graphResponse](t, do(t, s, http.MethodGet, "/api/graph", ""))
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
	assert.False(t, after.Cached)
	// Contributor order now follows first occurrence at 9 Elm St
	assert.Equal(t, []string{"Carol", "Alice", "Erin", "9 Elm St"}, labels(after.Nodes))
	assert.Len(t, after.Edges, 3)
}

func TestRebuild_Errors(t *testing.T) {
	s := newTestServer(t, true, nil)

	rec := do(t, s, http.MethodPost, "/api/rebuild", `{"id_scheme": "uuid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/rebuild", `{"min_contributors_at_address": -2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	missing := newTestServer(t, false, func(cfg *config.Config) {
		cfg.Build.InputPath = filepath.Join(t.TempDir(), "missing.csv")
	})
	rec = do(t, missing, http.MethodPost, "/api/rebuild", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	bad := newTestServer(t, false, nil)
	require.NoError(t, os.WriteFile(bad.cfg.Build.InputPath,
		[]byte(contributions+"Zed,Individual,\"9 Elm St\",lots,2024-05-01\n"), 0644))
	rec = do(t, bad, http.MethodPost, "/api/rebuild", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, "DATA_FORMAT", body.Type)
	assert.EqualValues(t, 8, body.Context["row"])
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, true, func(cfg *config.Config) {
		cfg.Server.RateLimit = 0.001
		cfg.Server.Burst = 1
	})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/graph", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodGet, "/api/graph", "").Code)
	// Outside /api is never limited
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "").Code)
}

func TestMetricsAndIndex(t *testing.T) {
	s := newTestServer(t, true, nil)
	do(t, s, http.MethodGet, "/api/graph", "")
	do(t, s, http.MethodGet, "/api/graph", "")

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `addrlinks_http_requests_total{method="GET",route="/api/graph",status="200"} 2`)
	assert.Contains(t, body, `addrlinks_filter_cache_total{result="hit"} 1`)
	assert.Contains(t, body, `addrlinks_dataset_edges 5`)

	rec = do(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Shared Address Links")
}

func TestReloadWatcher(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan struct{}, 4)
	w, err := newReloadWatcher(dir, []string{"nodes.csv"}, 20*time.Millisecond, func() {
		changed <- struct{}{}
	}, quietLogger())
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.relevant(fsnotify.Event{Name: filepath.Join(dir, "nodes.csv"), Op: fsnotify.Rename}))
	assert.False(t, w.relevant(fsnotify.Event{Name: filepath.Join(dir, ".nodes-123.csv"), Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: filepath.Join(dir, "nodes.csv"), Op: fsnotify.Chmod}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.csv"), []byte("id\n"), 0644))
	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after table write")
	}
}
