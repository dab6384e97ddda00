package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rohankatakam/addrlinks/internal/filter"
)

// TopSharedInput are the top_shared_addresses arguments
type TopSharedInput struct {
	ContributorTypes []string `json:"contributor_types,omitempty" jsonschema:"contributor types to keep; empty keeps every type"`
	MinContributors  int      `json:"min_contributors,omitempty" jsonschema:"minimum distinct contributors per address, default 2"`
	MinAmount        string   `json:"min_amount,omitempty" jsonschema:"lower bound on node total amount as a decimal string"`
	MaxAmount        string   `json:"max_amount,omitempty" jsonschema:"upper bound on node total amount as a decimal string"`
	Limit            int      `json:"limit,omitempty" jsonschema:"number of addresses to return, default 12"`
}

// TopSharedOutput ranks the filtered addresses
type TopSharedOutput struct {
	Fingerprint       string         `json:"fingerprint"`
	AddressesShown    int            `json:"addresses_shown"`
	ContributorsShown int            `json:"contributors_shown"`
	Rows              []TopSharedRow `json:"rows"`
}

// TopSharedTool ranks addresses by distinct contributors then transactions
type TopSharedTool struct {
	deps Deps
}

func NewTopSharedTool(deps Deps) *TopSharedTool {
	return &TopSharedTool{deps: deps}
}

func (t *TopSharedTool) Definition() *mcp.Tool {
	return &mcp.Tool{
		Name: "top_shared_addresses",
		Description: "Rank the addresses of the filtered network by number of distinct " +
			"contributors, then by transactions.",
	}
}

func (t *TopSharedTool) Handle(ctx context.Context, req *mcp.CallToolRequest, in TopSharedInput) (*mcp.CallToolResult, TopSharedOutput, error) {
	snap, view, err := t.deps.apply(ctx, filterArgs{
		types:           in.ContributorTypes,
		minContributors: in.MinContributors,
		minAmount:       in.MinAmount,
		maxAmount:       in.MaxAmount,
	})
	if err != nil {
		return nil, TopSharedOutput{}, err
	}

	limit := in.Limit
	if limit <= 0 {
		limit = t.deps.TopLimit
	}
	s := filter.Summarize(view, limit)

	out := TopSharedOutput{
		Fingerprint:       snap.Fingerprint,
		AddressesShown:    s.AddressesShown,
		ContributorsShown: s.ContributorsShown,
		Rows:              make([]TopSharedRow, 0, len(s.Top)),
	}
	for _, r := range s.Top {
		out.Rows = append(out.Rows, toTopSharedRow(r))
	}
	return nil, out, nil
}
