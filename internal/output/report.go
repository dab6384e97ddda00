package output

import (
	"github.com/shopspring/decimal"

	"github.com/rohankatakam/addrlinks/internal/filter"
)

// EdgeRow is an edge with its contributor resolved to a name
type EdgeRow struct {
	Contributor string          `json:"contributor"`
	ContribType string          `json:"contrib_type,omitempty"`
	Address     string          `json:"address"`
	TxCount     int             `json:"tx_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Report is the result of one filter run
type Report struct {
	Fingerprint string          `json:"fingerprint,omitempty"`
	Params      filter.Params   `json:"params"`
	Summary     *filter.Summary `json:"summary"`
	Edges       []EdgeRow       `json:"edges,omitempty"`
}

// NewReport summarizes view. Edge rows are included only when withEdges is set.
func NewReport(fingerprint string, params filter.Params, view *filter.View, limit int, withEdges bool) *Report {
	r := &Report{
		Fingerprint: fingerprint,
		Params:      params,
		Summary:     filter.Summarize(view, limit),
	}
	if !withEdges {
		return r
	}

	names := make(map[string]string, len(view.Nodes))
	types := make(map[string]string)
	for _, n := range view.Nodes {
		names[n.ID] = n.Label
		if n.ContribType != nil {
			types[n.ID] = *n.ContribType
		}
	}
	r.Edges = make([]EdgeRow, 0, len(view.Edges))
	for _, e := range view.Edges {
		r.Edges = append(r.Edges, EdgeRow{
			Contributor: names[e.Source],
			ContribType: types[e.Source],
			Address:     e.Address,
			TxCount:     e.TxCount,
			TotalAmount: e.TotalAmount,
		})
	}
	return r
}
