package tools

import (
	"github.com/rohankatakam/addrlinks/internal/filter"
	"github.com/rohankatakam/addrlinks/internal/models"
)

// Node is a graph node as returned to MCP clients. Amounts are decimal
// strings so no precision is lost in JSON.
type Node struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Type         string `json:"type"`
	ContribType  string `json:"contrib_type,omitempty"`
	TotalAmount  string `json:"total_amount"`
	TxCount      int    `json:"tx_count"`
	Contributors int    `json:"contributors,omitempty"` // address nodes only
	Title        string `json:"title"`
}

// Edge is a contributor -> address link
type Edge struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Address     string `json:"address"`
	TxCount     int    `json:"tx_count"`
	TotalAmount string `json:"total_amount"`
	Title       string `json:"title"`
}

// TopSharedRow is one ranked address
type TopSharedRow struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Contributors int    `json:"contributors"`
	Links        int    `json:"links"`
	TxCount      int    `json:"tx_count"`
	TotalAmount  string `json:"total_amount"`
	Display      string `json:"display"`
}

func toNode(n models.Node) Node {
	out := Node{
		ID:          n.ID,
		Label:       n.Label,
		Type:        n.Type,
		TotalAmount: n.TotalAmount.String(),
		TxCount:     n.TxCount,
		Title:       filter.NodeTitle(n),
	}
	if n.ContribType != nil {
		out.ContribType = *n.ContribType
	}
	if n.Contributors != nil {
		out.Contributors = *n.Contributors
	}
	return out
}

func toEdge(e models.Edge) Edge {
	return Edge{
		Source:      e.Source,
		Target:      e.Target,
		Address:     e.Address,
		TxCount:     e.TxCount,
		TotalAmount: e.TotalAmount.String(),
		Title:       filter.EdgeTitle(e),
	}
}

func toTopSharedRow(r filter.TopAddress) TopSharedRow {
	return TopSharedRow{
		ID:           r.ID,
		Label:        r.Label,
		Contributors: r.Contributors,
		Links:        r.Links,
		TxCount:      r.TxCount,
		TotalAmount:  r.TotalAmount.String(),
		Display:      filter.FormatAmount(r.TotalAmount),
	}
}
