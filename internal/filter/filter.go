package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/models"
)

// Range is an inclusive amount interval
type Range struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// Contains reports whether v lies in [Min, Max]
func (r Range) Contains(v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(r.Min) && v.LessThanOrEqual(r.Max)
}

// Params are the runtime display filters
type Params struct {
	// ContributorTypes restricts contributor nodes; empty means no restriction
	ContributorTypes []string `json:"contributor_types"`
	// MinContributorsPerAddress is recounted from the edge table
	MinContributorsPerAddress int `json:"min_contributors_per_address"`
	// AmountRange bounds total_amount on both node variants; nil means unbounded
	AmountRange *Range `json:"amount_range,omitempty"`
}

// Validate rejects malformed params instead of letting them produce an
// empty view
func (p Params) Validate() error {
	if p.MinContributorsPerAddress < 1 {
		return errors.ValidationErrorf("min_contributors_per_address must be >= 1, got %d",
			p.MinContributorsPerAddress)
	}
	if p.AmountRange != nil && p.AmountRange.Min.GreaterThan(p.AmountRange.Max) {
		return errors.ValidationErrorf("amount range min %s is greater than max %s",
			p.AmountRange.Min, p.AmountRange.Max).
			WithContext("min", p.AmountRange.Min.String()).
			WithContext("max", p.AmountRange.Max.String())
	}
	return nil
}

// Key is a canonical string for params, independent of type order, for
// use in result cache keys
func (p Params) Key() string {
	types := make([]string, len(p.ContributorTypes))
	copy(types, p.ContributorTypes)
	sort.Strings(types)

	var sb strings.Builder
	fmt.Fprintf(&sb, "min=%d", p.MinContributorsPerAddress)
	sb.WriteString("|types=")
	for i, t := range types {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%q", t)
	}
	if p.AmountRange != nil {
		fmt.Fprintf(&sb, "|range=%s..%s", p.AmountRange.Min.String(), p.AmountRange.Max.String())
	}
	return sb.String()
}

// View is one filtered, referentially closed slice of the graph
type View struct {
	Nodes []models.Node `json:"nodes"`
	Edges []models.Edge `json:"edges"`
}

// AddressNodes returns the address nodes in the view
func (v *View) AddressNodes() []models.Node {
	return (&models.Dataset{Nodes: v.Nodes}).AddressNodes()
}

// ContributorNodes returns the contributor nodes in the view
func (v *View) ContributorNodes() []models.Node {
	return (&models.Dataset{Nodes: v.Nodes}).ContributorNodes()
}

// Apply filters nodes and edges. Inputs are never modified and the result
// shares no memory with them.
func Apply(nodes []models.Node, edges []models.Edge, params Params) (*View, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	// Distinct contributors per address, recounted from the full edge table
	sources := make(map[string]map[string]struct{})
	for _, e := range edges {
		s, ok := sources[e.Target]
		if !ok {
			s = make(map[string]struct{})
			sources[e.Target] = s
		}
		s[e.Source] = struct{}{}
	}

	var types map[string]struct{}
	if len(params.ContributorTypes) > 0 {
		types = make(map[string]struct{}, len(params.ContributorTypes))
		for _, t := range params.ContributorTypes {
			types[t] = struct{}{}
		}
	}

	view := &View{
		Nodes: make([]models.Node, 0, len(nodes)),
		Edges: make([]models.Edge, 0, len(edges)),
	}
	keep := make(map[string]struct{}, len(nodes))

	for _, n := range nodes {
		switch n.Type {
		case models.NodeTypeAddress:
			if len(sources[n.ID]) < params.MinContributorsPerAddress {
				continue
			}
		case models.NodeTypeContributor:
			if types != nil {
				if n.ContribType == nil {
					continue
				}
				if _, ok := types[*n.ContribType]; !ok {
					continue
				}
			}
		default:
			continue
		}

		if params.AmountRange != nil && !params.AmountRange.Contains(n.TotalAmount) {
			continue
		}

		keep[n.ID] = struct{}{}
		view.Nodes = append(view.Nodes, cloneNode(n))
	}

	for _, e := range edges {
		_, src := keep[e.Source]
		_, dst := keep[e.Target]
		if src && dst {
			view.Edges = append(view.Edges, e)
		}
	}

	return view, nil
}

func cloneNode(n models.Node) models.Node {
	if n.ContribType != nil {
		v := *n.ContribType
		n.ContribType = &v
	}
	if n.Contributors != nil {
		v := *n.Contributors
		n.Contributors = &v
	}
	return n
}

// DefaultTypes returns every distinct contributor type, sorted, and the
// default selection: the types equal to "individual" ignoring case, or all
// types when there is none.
func DefaultTypes(nodes []models.Node) (all, selected []string) {
	seen := make(map[string]struct{})
	for _, n := range nodes {
		if !n.IsContributor() || n.ContribType == nil {
			continue
		}
		if _, ok := seen[*n.ContribType]; ok {
			continue
		}
		seen[*n.ContribType] = struct{}{}
		all = append(all, *n.ContribType)
	}
	sort.Strings(all)

	for _, t := range all {
		if strings.EqualFold(t, "individual") {
			selected = append(selected, t)
		}
	}
	if len(selected) == 0 {
		selected = append([]string(nil), all...)
	}
	return all, selected
}

// AmountBounds returns the observed min and max node total. ok is false
// when there are no nodes.
func AmountBounds(nodes []models.Node) (bounds Range, ok bool) {
	for i, n := range nodes {
		if i == 0 {
			bounds = Range{Min: n.TotalAmount, Max: n.TotalAmount}
			continue
		}
		if n.TotalAmount.LessThan(bounds.Min) {
			bounds.Min = n.TotalAmount
		}
		if n.TotalAmount.GreaterThan(bounds.Max) {
			bounds.Max = n.TotalAmount
		}
	}
	return bounds, len(nodes) > 0
}

// ParseRange builds an amount range from optional textual bounds. An empty
// bound is taken from the observed range of nodes; nil means both are empty.
func ParseRange(nodes []models.Node, minRaw, maxRaw string) (*Range, error) {
	minRaw, maxRaw = strings.TrimSpace(minRaw), strings.TrimSpace(maxRaw)
	if minRaw == "" && maxRaw == "" {
		return nil, nil
	}

	bounds, ok := AmountBounds(nodes)
	r := &Range{Min: bounds.Min, Max: bounds.Max}
	if minRaw != "" {
		v, err := decimal.NewFromString(minRaw)
		if err != nil {
			return nil, errors.ValidationErrorf("invalid min amount %q", minRaw)
		}
		r.Min = v
		if !ok && maxRaw == "" {
			r.Max = v
		}
	}
	if maxRaw != "" {
		v, err := decimal.NewFromString(maxRaw)
		if err != nil {
			return nil, errors.ValidationErrorf("invalid max amount %q", maxRaw)
		}
		r.Max = v
		if !ok && minRaw == "" {
			r.Min = v
		}
	}
	return r, nil
}
