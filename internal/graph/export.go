package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/rohankatakam/addrlinks/internal/logging"
	"github.com/rohankatakam/addrlinks/internal/models"
)

// DefaultBatchSize is the number of nodes or edges sent per UNWIND statement
const DefaultBatchSize = 500

// ExportStats tracks what an export wrote
type ExportStats struct {
	Nodes    int
	Edges    int
	Batches  int
	Duration time.Duration
	Steps    map[string]time.Duration // time spent per operation
}

// Export replaces the backend's contents with the dataset. All nodes are
// written before any edge so edge MATCHes always find both endpoints.
func Export(ctx context.Context, backend Backend, ds *models.Dataset, batchSize int) (*ExportStats, error) {
	return export(ctx, backend, ds, batchSize, NewTimeoutMonitor())
}

func export(ctx context.Context, backend Backend, ds *models.Dataset, batchSize int, monitor *TimeoutMonitor) (*ExportStats, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	start := time.Now()
	stats := &ExportStats{}
	log := logging.Component("export")
	run := func(op string, fn func(context.Context) error) error {
		return monitor.Run(ctx, op, fn)
	}
	defer func() { stats.Steps = monitor.Spent() }()

	if err := run(OpExportReset, backend.Reset); err != nil {
		return stats, fmt.Errorf("reset graph failed: %w", err)
	}

	nodes := make([]GraphNode, len(ds.Nodes))
	labels := make(map[string]string, len(ds.Nodes))
	for i, n := range ds.Nodes {
		nodes[i] = ToGraphNode(n)
		labels[n.ID] = nodes[i].Label
	}
	for i := 0; i < len(nodes); i += batchSize {
		end := min(i+batchSize, len(nodes))
		batch := nodes[i:end]
		err := run(OpExportNodes, func(ctx context.Context) error { return backend.CreateNodes(ctx, batch) })
		if err != nil {
			return stats, fmt.Errorf("batch node creation failed (batch %d-%d): %w", i, end, err)
		}
		stats.Nodes += end - i
		stats.Batches++
	}

	edges := make([]GraphEdge, len(ds.Edges))
	for i, e := range ds.Edges {
		edges[i] = ToGraphEdge(e, labels)
	}
	for i := 0; i < len(edges); i += batchSize {
		end := min(i+batchSize, len(edges))
		batch := edges[i:end]
		err := run(OpExportEdges, func(ctx context.Context) error { return backend.CreateEdges(ctx, batch) })
		if err != nil {
			return stats, fmt.Errorf("batch edge creation failed (batch %d-%d): %w", i, end, err)
		}
		stats.Edges += end - i
		stats.Batches++
	}

	stats.Duration = time.Since(start)
	log.Info("graph exported",
		"nodes", stats.Nodes, "edges", stats.Edges,
		"batches", stats.Batches, "duration", stats.Duration)
	return stats, nil
}
