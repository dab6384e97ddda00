package validation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rohankatakam/addrlinks/internal/graph"
	"github.com/rohankatakam/addrlinks/internal/logging"
	"github.com/rohankatakam/addrlinks/internal/models"
)

// Counter counts what an export wrote to a graph database
type Counter interface {
	CountNodes(ctx context.Context, label string) (int64, error)
	CountEdges(ctx context.Context, edgeLabel string) (int64, error)
}

// ValidationResult contains the results of a consistency check
type ValidationResult struct {
	EntityType      string
	StoredCount     int64
	GraphCount      int64
	SyncPercent     float64
	PassedThreshold bool
}

// ConsistencyValidator compares the stored tables with an exported graph
type ConsistencyValidator struct {
	counter Counter
	logger  *slog.Logger
}

// NewConsistencyValidator creates a new consistency validator
func NewConsistencyValidator(counter Counter) *ConsistencyValidator {
	return &ConsistencyValidator{
		counter: counter,
		logger:  logging.Component("validation"),
	}
}

// ValidateAfterExport checks that every address, contributor and edge of ds
// made it into the graph. An export replaces the graph, so counts must match
// exactly.
func (v *ConsistencyValidator) ValidateAfterExport(ctx context.Context, ds *models.Dataset) ([]ValidationResult, error) {
	checks := []struct {
		entity string
		stored int
		count  func(context.Context) (int64, error)
	}{
		{"Addresses", len(ds.AddressNodes()), func(ctx context.Context) (int64, error) {
			return v.counter.CountNodes(ctx, graph.LabelAddress)
		}},
		{"Contributors", len(ds.ContributorNodes()), func(ctx context.Context) (int64, error) {
			return v.counter.CountNodes(ctx, graph.LabelContributor)
		}},
		{"Edges", len(ds.Edges), func(ctx context.Context) (int64, error) {
			return v.counter.CountEdges(ctx, graph.LabelAtAddress)
		}},
	}

	results := make([]ValidationResult, 0, len(checks))
	for _, c := range checks {
		got, err := c.count(ctx)
		if err != nil {
			return results, fmt.Errorf("failed to count %s: %w", c.entity, err)
		}
		results = append(results, newResult(c.entity, int64(c.stored), got))
	}
	return results, nil
}

func newResult(entity string, stored, got int64) ValidationResult {
	sync := 100.0
	if stored > 0 {
		sync = float64(got) / float64(stored) * 100.0
	}
	return ValidationResult{
		EntityType:      entity,
		StoredCount:     stored,
		GraphCount:      got,
		SyncPercent:     sync,
		PassedThreshold: stored == got,
	}
}

// AllPassed reports whether every check matched
func AllPassed(results []ValidationResult) bool {
	for _, r := range results {
		if !r.PassedThreshold {
			return false
		}
	}
	return true
}

// LogResults logs validation results in a formatted way
func (v *ConsistencyValidator) LogResults(results []ValidationResult) {
	for _, r := range results {
		v.logger.Info(fmt.Sprintf("%-13s stored=%d, graph=%d, sync=%.1f%%",
			r.EntityType+":", r.StoredCount, r.GraphCount, r.SyncPercent))
	}
	if AllPassed(results) {
		v.logger.Info("graph matches the stored tables")
	} else {
		v.logger.Warn("graph does not match the stored tables; re-run addrlinks export")
	}
}
