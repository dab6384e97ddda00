package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Export operation names, used as transaction metadata and in logs
const (
	OpExportSchema = "export_schema"
	OpExportReset  = "export_reset"
	OpExportNodes  = "export_nodes"
	OpExportEdges  = "export_edges"
	OpExportVerify = "export_verify"
)

// fallbackTimeout bounds operations missing from opTable
const fallbackTimeout = time.Minute

// opTable holds the timeout and access kind of each export operation.
// Reset is generous because DETACH DELETE of a large previous export is slow.
var opTable = map[string]struct {
	timeout time.Duration
	kind    string
}{
	OpExportSchema: {2 * time.Minute, "schema"},
	OpExportReset:  {5 * time.Minute, "write"},
	OpExportNodes:  {3 * time.Minute, "write"},
	OpExportEdges:  {3 * time.Minute, "write"},
	OpExportVerify: {30 * time.Second, "read"},
}

// TransactionConfig is the timeout and query.log metadata of one operation
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

// GetConfigForOperation looks the operation up in opTable. Unknown
// operations get fallbackTimeout and kind "unknown".
func GetConfigForOperation(operation string) TransactionConfig {
	timeout, kind := fallbackTimeout, "unknown"
	if entry, ok := opTable[operation]; ok {
		timeout, kind = entry.timeout, entry.kind
	}
	return TransactionConfig{
		Timeout:  timeout,
		Metadata: map[string]any{"app": "addrlinks", "operation": operation, "type": kind},
	}
}

// AsNeo4jConfig converts to options for ExecuteRead/ExecuteWrite
func (tc TransactionConfig) AsNeo4jConfig() []func(*neo4j.TransactionConfig) {
	var opts []func(*neo4j.TransactionConfig)
	if tc.Timeout > 0 {
		opts = append(opts, neo4j.WithTxTimeout(tc.Timeout))
	}
	if len(tc.Metadata) > 0 {
		opts = append(opts, neo4j.WithTxMetadata(tc.Metadata))
	}
	return opts
}
