package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Node type discriminants
const (
	NodeTypeAddress     = "address"
	NodeTypeContributor = "contributor"
)

// EdgeTypeAtAddress is the only edge kind in the contributor/address graph
const EdgeTypeAtAddress = "at_address"

// Node id prefixes
const (
	AddressIDPrefix     = "addr:"
	ContributorIDPrefix = "person:"
)

// ContributionRecord is one raw contribution row
type ContributionRecord struct {
	Row             int             `json:"row"` // 1-based data row in the source file (header excluded)
	ContributorName string          `json:"contributor_name"`
	ContributorType string          `json:"contributor_type"`
	FullAddress     string          `json:"full_address"`
	GroupID         string          `json:"group_id,omitempty"` // pre-assigned group, empty = derive from FullAddress
	Amount          decimal.Decimal `json:"amount"`
	Date            *time.Time      `json:"date,omitempty"`
}

// AddressGroup aggregates every record sharing one exact full_address
type AddressGroup struct {
	GroupID      string          `json:"group_id" db:"group_id"`
	FullAddress  string          `json:"full_address" db:"full_address"`
	Contributors int             `json:"contributors" db:"contributors"`
	TotalAmount  decimal.Decimal `json:"total_amount" db:"total_amount"`
	TxCount      int             `json:"tx_count" db:"tx_count"`
}

// TopSharedAddress is a retained AddressGroup in the ranked summary table
type TopSharedAddress = AddressGroup

// Node is either an address or a contributor in the bipartite graph
type Node struct {
	ID           string          `json:"id" db:"id"`
	Label        string          `json:"label" db:"label"`
	Type         string          `json:"type" db:"type"`
	ContribType  *string         `json:"contrib_type" db:"contrib_type"` // nil on address nodes
	TotalAmount  decimal.Decimal `json:"total_amount" db:"total_amount"`
	TxCount      int             `json:"tx_count" db:"tx_count"`
	Contributors *int            `json:"contributors,omitempty" db:"contributors"` // address nodes only
}

// IsAddress reports whether the node is the address variant
func (n *Node) IsAddress() bool {
	return n.Type == NodeTypeAddress
}

// IsContributor reports whether the node is the contributor variant
func (n *Node) IsContributor() bool {
	return n.Type == NodeTypeContributor
}

// Edge links a contributor to an address, aggregated over all their records there
type Edge struct {
	Source      string          `json:"source" db:"source"`
	Target      string          `json:"target" db:"target"`
	EdgeType    string          `json:"edge_type" db:"edge_type"`
	Address     string          `json:"address" db:"address"`
	TxCount     int             `json:"tx_count" db:"tx_count"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
}

// BuildManifest describes how a persisted dataset was produced
type BuildManifest struct {
	RunID                    string    `json:"run_id" yaml:"run_id" db:"run_id"`
	BuiltAt                  time.Time `json:"built_at" yaml:"built_at" db:"built_at"`
	InputPath                string    `json:"input_path" yaml:"input_path" db:"input_path"`
	InputFingerprint         string    `json:"input_fingerprint" yaml:"input_fingerprint" db:"input_fingerprint"`
	MinContributorsAtAddress int       `json:"min_contributors_at_address" yaml:"min_contributors_at_address" db:"min_contributors_at_address"`
	RecordCount              int       `json:"record_count" yaml:"record_count" db:"record_count"`
	AddressCount             int       `json:"address_count" yaml:"address_count" db:"address_count"`
	ContributorCount         int       `json:"contributor_count" yaml:"contributor_count" db:"contributor_count"`
	EdgeCount                int       `json:"edge_count" yaml:"edge_count" db:"edge_count"`
}

// Dataset is the complete output of one Graph Builder run
type Dataset struct {
	Nodes     []Node             `json:"nodes"`
	Edges     []Edge             `json:"edges"`
	TopShared []TopSharedAddress `json:"top_shared_addresses"`
	Manifest  *BuildManifest     `json:"manifest,omitempty"`
}

// AddressNodes returns the address variant nodes in table order
func (d *Dataset) AddressNodes() []Node {
	return nodesOfType(d.Nodes, NodeTypeAddress)
}

// ContributorNodes returns the contributor variant nodes in table order
func (d *Dataset) ContributorNodes() []Node {
	return nodesOfType(d.Nodes, NodeTypeContributor)
}

func nodesOfType(nodes []Node, nodeType string) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == nodeType {
			out = append(out, n)
		}
	}
	return out
}
