package graph

import (
	"context"

	"github.com/rohankatakam/addrlinks/internal/models"
)

// Graph database labels for the exported network
const (
	LabelAddress     = "Address"
	LabelContributor = "Contributor"
	LabelAtAddress   = "AT_ADDRESS"
)

// Backend defines the interface for exporting the network to a graph database
type Backend interface {
	// Reset removes every previously exported Address and Contributor node
	Reset(ctx context.Context) error

	// CreateNodes merges nodes in batch, keyed by id
	CreateNodes(ctx context.Context, nodes []GraphNode) error

	// CreateEdges merges edges in batch; both endpoints must already exist
	CreateEdges(ctx context.Context, edges []GraphEdge) error

	// Close closes the backend connection
	Close(ctx context.Context) error
}

// GraphNode represents a node in the graph
type GraphNode struct {
	Label      string         // "Address" or "Contributor"
	ID         string         // Node id as persisted, e.g. "addr:3"
	Properties map[string]any // Node properties
}

// GraphEdge represents an edge in the graph
type GraphEdge struct {
	Label      string         // Always "AT_ADDRESS"
	From       string         // Source node ID
	FromLabel  string         // Label of the source node
	To         string         // Target node ID
	ToLabel    string         // Label of the target node
	Properties map[string]any // Edge properties
}

// ToGraphNode converts a dataset node. Amounts are exported both as a float
// for Cypher arithmetic and as the exact decimal string.
func ToGraphNode(n models.Node) GraphNode {
	props := map[string]any{
		"id":           n.ID,
		"label":        n.Label,
		"total_amount": n.TotalAmount.InexactFloat64(),
		"amount_text":  n.TotalAmount.String(),
		"tx_count":     int64(n.TxCount),
	}
	if n.ContribType != nil {
		props["contrib_type"] = *n.ContribType
	}
	if n.Contributors != nil {
		props["contributors"] = int64(*n.Contributors)
	}
	return GraphNode{
		Label:      nodeLabel(n),
		ID:         n.ID,
		Properties: props,
	}
}

// ToGraphEdge converts a dataset edge. Endpoints are a contributor and an
// address; labels maps node ids to their label when the caller knows them.
func ToGraphEdge(e models.Edge, labels map[string]string) GraphEdge {
	from, to := labels[e.Source], labels[e.Target]
	if from == "" {
		from = LabelContributor
	}
	if to == "" {
		to = LabelAddress
	}
	return GraphEdge{
		Label:     LabelAtAddress,
		From:      e.Source,
		FromLabel: from,
		To:        e.Target,
		ToLabel:   to,
		Properties: map[string]any{
			"address":      e.Address,
			"tx_count":     int64(e.TxCount),
			"total_amount": e.TotalAmount.InexactFloat64(),
			"amount_text":  e.TotalAmount.String(),
		},
	}
}

// nodeLabel maps a node to its graph label by type
func nodeLabel(n models.Node) string {
	if n.IsAddress() {
		return LabelAddress
	}
	return LabelContributor
}
