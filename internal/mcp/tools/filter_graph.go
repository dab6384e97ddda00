package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/addrlinks/internal/filter"
)

// DefaultMaxNodes caps the node list returned by filter_graph
const DefaultMaxNodes = 200

// FilterGraphInput are the filter_graph arguments
type FilterGraphInput struct {
	ContributorTypes []string `json:"contributor_types,omitempty" jsonschema:"contributor types to keep; empty keeps every type"`
	MinContributors  int      `json:"min_contributors,omitempty" jsonschema:"minimum distinct contributors per address, default 2"`
	MinAmount        string   `json:"min_amount,omitempty" jsonschema:"lower bound on node total amount as a decimal string"`
	MaxAmount        string   `json:"max_amount,omitempty" jsonschema:"upper bound on node total amount as a decimal string"`
	MaxNodes         int      `json:"max_nodes,omitempty" jsonschema:"truncate the node list, default 200"`
}

// FilterGraphOutput is a referentially closed slice of the filtered graph
type FilterGraphOutput struct {
	Fingerprint       string `json:"fingerprint"`
	AddressesShown    int    `json:"addresses_shown"`
	ContributorsShown int    `json:"contributors_shown"`
	EdgesShown        int    `json:"edges_shown"`
	Truncated         bool   `json:"truncated"`
	Nodes             []Node `json:"nodes"`
	Edges             []Edge `json:"edges"`
}

// FilterGraphTool applies the display filters and returns nodes and edges
type FilterGraphTool struct {
	deps Deps
}

func NewFilterGraphTool(deps Deps) *FilterGraphTool {
	return &FilterGraphTool{deps: deps}
}

// Definition is the MCP tool metadata
func (t *FilterGraphTool) Definition() *mcp.Tool {
	return &mcp.Tool{
		Name: "filter_graph",
		Description: "Filter the contributor/address network by contributor type, " +
			"minimum distinct contributors per address and node total amount. " +
			"Returns nodes and the edges between them.",
	}
}

// Handle runs the tool. Counts always describe the whole filtered view,
// even when the node list is truncated.
func (t *FilterGraphTool) Handle(ctx context.Context, req *mcp.CallToolRequest, in FilterGraphInput) (*mcp.CallToolResult, FilterGraphOutput, error) {
	snap, view, err := t.deps.apply(ctx, filterArgs{
		types:           in.ContributorTypes,
		minContributors: in.MinContributors,
		minAmount:       in.MinAmount,
		maxAmount:       in.MaxAmount,
	})
	if err != nil {
		return nil, FilterGraphOutput{}, err
	}

	limit := in.MaxNodes
	if limit <= 0 {
		limit = DefaultMaxNodes
	}

	out := FilterGraphOutput{
		Fingerprint:       snap.Fingerprint,
		AddressesShown:    len(view.AddressNodes()),
		ContributorsShown: len(view.ContributorNodes()),
		EdgesShown:        len(view.Edges),
		Nodes:             make([]Node, 0, min(limit, len(view.Nodes))),
		Edges:             make([]Edge, 0),
	}

	keep, truncated := keepByAddress(view, limit)
	out.Truncated = truncated
	for _, n := range view.Nodes {
		if _, ok := keep[n.ID]; ok {
			out.Nodes = append(out.Nodes, toNode(n))
		}
	}
	for _, e := range view.Edges {
		_, src := keep[e.Source]
		_, dst := keep[e.Target]
		if src && dst {
			out.Edges = append(out.Edges, toEdge(e))
		}
	}

	t.deps.logger().WithFields(logrus.Fields{
		"tool":      "filter_graph",
		"nodes":     len(out.Nodes),
		"edges":     len(out.Edges),
		"truncated": out.Truncated,
	}).Debug("tool call")
	return nil, out, nil
}

// keepByAddress picks whole addresses, highest ranked first, each with all
// of its contributors, until the next one would exceed limit nodes. An
// address too large to fit on its own is cut to its first contributors.
func keepByAddress(view *filter.View, limit int) (map[string]struct{}, bool) {
	if len(view.Nodes) <= limit {
		keep := make(map[string]struct{}, len(view.Nodes))
		for _, n := range view.Nodes {
			keep[n.ID] = struct{}{}
		}
		return keep, false
	}

	sources := make(map[string][]string)
	for _, e := range view.Edges {
		sources[e.Target] = append(sources[e.Target], e.Source)
	}

	keep := make(map[string]struct{}, limit)
	ranked := filter.Summarize(view, len(view.Nodes)).Top
	for _, row := range ranked {
		var add []string
		for _, src := range sources[row.ID] {
			if _, ok := keep[src]; !ok {
				add = append(add, src)
			}
		}
		if len(keep)+1+len(add) > limit {
			if len(keep) == 0 {
				keep[row.ID] = struct{}{}
				for _, src := range add[:limit-1] {
					keep[src] = struct{}{}
				}
			}
			break
		}
		keep[row.ID] = struct{}{}
		for _, src := range add {
			keep[src] = struct{}{}
		}
	}
	return keep, true
}
