package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rohankatakam/addrlinks/internal/logging"
)

// Neo4jBackend implements Backend for Neo4j with parameterized Cypher
type Neo4jBackend struct {
	driver   neo4j.DriverWithContext
	database string // Database name for all queries
}

// QueryWithParams represents a Cypher query with its parameters
type QueryWithParams struct {
	Query  string
	Params map[string]any
}

// NewNeo4jBackend creates a Neo4j backend instance and verifies connectivity
func NewNeo4jBackend(ctx context.Context, uri, username, password, database string) (*Neo4jBackend, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}

	return &Neo4jBackend{
		driver:   driver,
		database: database,
	}, nil
}

// Reset drops previously exported nodes and makes sure the id constraints exist
func (n *Neo4jBackend) Reset(ctx context.Context) error {
	var queries []QueryWithParams
	schema := GetConfigForOperation(OpExportSchema)

	for _, label := range []string{LabelAddress, LabelContributor} {
		q, err := NewCypherBuilder().BuildUniqueConstraint(label)
		if err != nil {
			return err
		}
		// Schema statements cannot share a transaction with writes
		schemaCtx, cancel := context.WithTimeout(ctx, schema.Timeout)
		_, err = neo4j.ExecuteQuery(schemaCtx, n.driver, q, nil,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(n.database))
		cancel()
		if err != nil {
			return fmt.Errorf("failed to create constraint on %s: %w", label, err)
		}
	}

	q, err := NewCypherBuilder().BuildDetachDelete(LabelAddress, LabelContributor)
	if err != nil {
		return err
	}
	queries = append(queries, QueryWithParams{Query: q})
	return n.ExecuteBatchWithParams(ctx, OpExportReset, queries)
}

// CreateNodes merges nodes using the UNWIND pattern, one query per label
func (n *Neo4jBackend) CreateNodes(ctx context.Context, nodes []GraphNode) error {
	if len(nodes) == 0 {
		return nil
	}

	// Group nodes by label, keeping label order stable
	var labels []string
	byLabel := make(map[string][]GraphNode)
	for _, node := range nodes {
		if _, ok := byLabel[node.Label]; !ok {
			labels = append(labels, node.Label)
		}
		byLabel[node.Label] = append(byLabel[node.Label], node)
	}

	queries := make([]QueryWithParams, 0, len(labels))
	for _, label := range labels {
		builder := NewCypherBuilder()
		cypher, err := builder.BuildUnwindMergeNodes(label, byLabel[label])
		if err != nil {
			return fmt.Errorf("failed to build %s node query: %w", label, err)
		}
		queries = append(queries, QueryWithParams{Query: cypher, Params: builder.Params()})
	}

	return n.ExecuteBatchWithParams(ctx, OpExportNodes, queries)
}

// CreateEdges merges edges using the UNWIND pattern, one statement per
// endpoint label pair
func (n *Neo4jBackend) CreateEdges(ctx context.Context, edges []GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}

	type shape struct{ from, to, label string }
	var shapes []shape
	byShape := make(map[shape][]GraphEdge)
	for _, e := range edges {
		s := shape{from: e.FromLabel, to: e.ToLabel, label: e.Label}
		if _, ok := byShape[s]; !ok {
			shapes = append(shapes, s)
		}
		byShape[s] = append(byShape[s], e)
	}

	logging.Debug("creating edges", "count", len(edges), "shapes", len(shapes))

	queries := make([]QueryWithParams, 0, len(shapes))
	for _, s := range shapes {
		builder := NewCypherBuilder()
		cypher, err := builder.BuildUnwindMergeEdges(s.from, s.to, s.label, byShape[s])
		if err != nil {
			return fmt.Errorf("failed to build %s edge query: %w", s.label, err)
		}
		queries = append(queries, QueryWithParams{Query: cypher, Params: builder.Params()})
	}

	return n.ExecuteBatchWithParams(ctx, OpExportEdges, queries)
}

// ExecuteBatchWithParams executes multiple parameterized queries in a single
// transaction, tagged with the operation's timeout and metadata
func (n *Neo4jBackend) ExecuteBatchWithParams(ctx context.Context, operation string, queries []QueryWithParams) error {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: n.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		for i, q := range queries {
			if _, err := tx.Run(ctx, q.Query, q.Params); err != nil {
				return nil, fmt.Errorf("batch command %d failed: %w", i, err)
			}
		}
		return nil, nil
	}, GetConfigForOperation(operation).AsNeo4jConfig()...)

	return err
}

// CountNodes counts exported nodes with label
func (n *Neo4jBackend) CountNodes(ctx context.Context, label string) (int64, error) {
	q, err := NewCypherBuilder().BuildCountNodes(label)
	if err != nil {
		return 0, err
	}
	return n.count(ctx, q)
}

// CountEdges counts exported relationships of edgeLabel
func (n *Neo4jBackend) CountEdges(ctx context.Context, edgeLabel string) (int64, error) {
	q, err := NewCypherBuilder().BuildCountEdges(edgeLabel)
	if err != nil {
		return 0, err
	}
	return n.count(ctx, q)
}

func (n *Neo4jBackend) count(ctx context.Context, query string) (int64, error) {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: n.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	res, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		count, _ := record.Get("count")
		return count, nil
	}, GetConfigForOperation(OpExportVerify).AsNeo4jConfig()...)
	if err != nil {
		return 0, fmt.Errorf("neo4j count failed: %w", err)
	}

	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected count type %T", res)
	}
	return count, nil
}

// Close closes the Neo4j driver connection
func (n *Neo4jBackend) Close(ctx context.Context) error {
	return n.driver.Close(ctx)
}
