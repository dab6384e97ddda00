package filter

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/rohankatakam/addrlinks/internal/models"
)

// DefaultTopLimit is the number of ranked addresses in a summary
const DefaultTopLimit = 12

// TopAddress is one ranked row of the filtered summary
type TopAddress struct {
	ID           string          `json:"id"`
	Label        string          `json:"label"`
	Contributors int             `json:"contributors"`
	Links        int             `json:"links"`    // edges into the address
	TxCount      int             `json:"tx_count"` // sum of edge tx_count
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// Summary describes a filtered view
type Summary struct {
	AddressesShown    int          `json:"addresses_shown"`
	ContributorsShown int          `json:"contributors_shown"`
	EdgesShown        int          `json:"edges_shown"`
	Top               []TopAddress `json:"top_shared_addresses"`
}

// Summarize counts the view's nodes and ranks its addresses by distinct
// contributors, then transactions, both descending. limit <= 0 uses
// DefaultTopLimit.
func Summarize(view *View, limit int) *Summary {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	s := &Summary{EdgesShown: len(view.Edges)}
	labels := make(map[string]string)
	order := make(map[string]int)
	for _, n := range view.Nodes {
		switch {
		case n.IsAddress():
			s.AddressesShown++
			labels[n.ID] = n.Label
			order[n.ID] = len(order)
		case n.IsContributor():
			s.ContributorsShown++
		}
	}

	byTarget := make(map[string]*TopAddress)
	sources := make(map[string]map[string]struct{})
	for _, e := range view.Edges {
		row, ok := byTarget[e.Target]
		if !ok {
			row = &TopAddress{ID: e.Target, Label: labels[e.Target]}
			byTarget[e.Target] = row
			sources[e.Target] = make(map[string]struct{})
		}
		sources[e.Target][e.Source] = struct{}{}
		row.Links++
		row.TxCount += e.TxCount
		row.TotalAmount = row.TotalAmount.Add(e.TotalAmount)
	}

	rows := make([]TopAddress, 0, len(byTarget))
	for id, row := range byTarget {
		row.Contributors = len(sources[id])
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Contributors != rows[j].Contributors {
			return rows[i].Contributors > rows[j].Contributors
		}
		if rows[i].TxCount != rows[j].TxCount {
			return rows[i].TxCount > rows[j].TxCount
		}
		return order[rows[i].ID] < order[rows[j].ID]
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	s.Top = rows
	return s
}

// FormatAmount renders a whole-dollar amount with thousands separators, e.g. "$1,235"
func FormatAmount(d decimal.Decimal) string {
	r := d.Round(0).IntPart()
	if r < 0 {
		return "-$" + humanize.Comma(-r)
	}
	return "$" + humanize.Comma(r)
}

// NodeTitle is the hover text for a node: "Address • 3 tx • $1,235" for
// addresses, the contributor type in place of "Address" otherwise.
func NodeTitle(n models.Node) string {
	kind := "Contributor"
	switch {
	case n.IsAddress():
		kind = "Address"
	case n.ContribType != nil && *n.ContribType != "":
		kind = *n.ContribType
	}
	return fmt.Sprintf("%s • %d tx • %s", kind, n.TxCount, FormatAmount(n.TotalAmount))
}

// EdgeTitle is the hover text for an edge: "1 Main St • 2 tx • $150"
func EdgeTitle(e models.Edge) string {
	return fmt.Sprintf("%s • %d tx • %s", e.Address, e.TxCount, FormatAmount(e.TotalAmount))
}

// NodeShape is the rendering hint for a node variant
func NodeShape(n models.Node) string {
	if n.IsAddress() {
		return "square"
	}
	return "dot"
}
