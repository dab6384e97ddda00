package graph

import (
	"context"
	"log/slog"
	"time"

	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/logging"
)

// slowRatio is the share of a step's timeout after which it is logged as slow
const slowRatio = 0.8

// TimeoutMonitor bounds each export step by its operation timeout and
// accumulates how long each operation took
type TimeoutMonitor struct {
	logger  *slog.Logger
	timeout func(operation string) time.Duration
	spent   map[string]time.Duration
}

// NewTimeoutMonitor uses the timeouts from GetConfigForOperation
func NewTimeoutMonitor() *TimeoutMonitor {
	return &TimeoutMonitor{
		logger:  logging.Component("export"),
		timeout: func(op string) time.Duration { return GetConfigForOperation(op).Timeout },
		spent:   make(map[string]time.Duration),
	}
}

// Run executes one step. A step that overruns its deadline is reported as
// an external error carrying the operation and timeout.
func (tm *TimeoutMonitor) Run(ctx context.Context, operation string, fn func(context.Context) error) error {
	timeout := tm.timeout(operation)
	stepCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(stepCtx)
	took := time.Since(start)
	tm.spent[operation] += took

	switch {
	case err != nil && stepCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		return errors.ExternalErrorf(err, "%s timed out after %s", operation, timeout).
			WithContext("operation", operation).
			WithContext("timeout", timeout.String())
	case err != nil:
		return err
	case timeout > 0 && took >= time.Duration(float64(timeout)*slowRatio):
		tm.logger.Warn("export step close to its timeout",
			"operation", operation, "took", took, "timeout", timeout)
	default:
		tm.logger.Debug("export step done", "operation", operation, "took", took)
	}
	return nil
}

// Spent returns the accumulated time per operation
func (tm *TimeoutMonitor) Spent() map[string]time.Duration {
	out := make(map[string]time.Duration, len(tm.spent))
	for op, d := range tm.spent {
		out[op] = d
	}
	return out
}
