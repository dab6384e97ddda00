package filter

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/graph"
	"github.com/rohankatakam/addrlinks/internal/models"
)

func contribution(name, ctype, address string, amount int64) models.ContributionRecord {
	return models.ContributionRecord{
		ContributorName: name,
		ContributorType: ctype,
		FullAddress:     address,
		Amount:          decimal.NewFromInt(amount),
	}
}

// scenario is the Alice/Bob/Carol dataset after a build with floor 2
func scenario(t *testing.T) *models.Dataset {
	t.Helper()
	ds, err := graph.Build([]models.ContributionRecord{
		contribution("Alice", "Individual", "1 Main St", 100),
		contribution("Bob", "Individual", "1 Main St", 50),
		contribution("Carol", "PAC", "2 Oak Ave", 200),
	}, 2)
	require.NoError(t, err)
	return ds
}

// mixed has two shared addresses with contributors of several types
func mixed(t *testing.T) *models.Dataset {
	t.Helper()
	ds, err := graph.Build([]models.ContributionRecord{
		contribution("Alice", "Individual", "1 Main St", 100),
		contribution("Bob", "Individual", "1 Main St", 150),
		contribution("Acme PAC", "PAC", "1 Main St", 5000),
		contribution("Dana", "individual", "7 Pine Rd", 20),
		contribution("Eve", "Committee", "7 Pine Rd", 900),
		contribution("Alice", "Individual", "7 Pine Rd", 10),
	}, 2)
	require.NoError(t, err)
	return ds
}

func rng(min, max int64) *Range {
	return &Range{Min: decimal.NewFromInt(min), Max: decimal.NewFromInt(max)}
}

func ids(nodes []models.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Label
	}
	return out
}

func assertClosed(t *testing.T, v *View) {
	t.Helper()
	present := make(map[string]bool, len(v.Nodes))
	for _, n := range v.Nodes {
		present[n.ID] = true
	}
	for _, e := range v.Edges {
		assert.True(t, present[e.Source], "edge source %s dangles", e.Source)
		assert.True(t, present[e.Target], "edge target %s dangles", e.Target)
	}
}

func TestApply_Composition(t *testing.T) {
	ds := scenario(t)

	view, err := Apply(ds.Nodes, ds.Edges, Params{
		ContributorTypes:          []string{"Individual"},
		MinContributorsPerAddress: 2,
		AmountRange:               rng(0, 100),
	})
	require.NoError(t, err)

	// The address total is 150, so the amount filter removes it too
	assert.Equal(t, []string{"Alice", "Bob"}, ids(view.Nodes))
	assert.Empty(t, view.Edges)
	assertClosed(t, view)

	view, err = Apply(ds.Nodes, ds.Edges, Params{
		ContributorTypes:          []string{"Individual"},
		MinContributorsPerAddress: 2,
		AmountRange:               rng(0, 150),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob", "1 Main St"}, ids(view.Nodes))
	assert.Len(t, view.Edges, 2)

	view, err = Apply(ds.Nodes, ds.Edges, Params{
		ContributorTypes:          []string{"Individual"},
		MinContributorsPerAddress: 2,
		AmountRange:               rng(75, 150),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "1 Main St"}, ids(view.Nodes), "Bob's $50 is out of range")
	require.Len(t, view.Edges, 1)
	assert.Equal(t, "person:0", view.Edges[0].Source)
	assertClosed(t, view)
}

func TestApply_TypeFilterOnlyAppliesToContributors(t *testing.T) {
	ds := mixed(t)

	view, err := Apply(ds.Nodes, ds.Edges, Params{
		ContributorTypes:          []string{"PAC"},
		MinContributorsPerAddress: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Acme PAC", "1 Main St", "7 Pine Rd"}, ids(view.Nodes))
	require.Len(t, view.Edges, 1)
	assert.Equal(t, "1 Main St", view.Edges[0].Address)
	assertClosed(t, view)
}

func TestApply_TypeMatchIsExact(t *testing.T) {
	ds := mixed(t)

	view, err := Apply(ds.Nodes, ds.Edges, Params{
		ContributorTypes:          []string{"Individual"},
		MinContributorsPerAddress: 1,
	})
	require.NoError(t, err)
	for _, n := range view.ContributorNodes() {
		assert.Equal(t, "Individual", *n.ContribType)
	}
	assert.NotContains(t, ids(view.Nodes), "Dana")
}

func TestApply_NoTypesMeansAllContributors(t *testing.T) {
	ds := mixed(t)

	view, err := Apply(ds.Nodes, ds.Edges, Params{MinContributorsPerAddress: 2})
	require.NoError(t, err)
	assert.Len(t, view.Nodes, len(ds.Nodes))
	assert.Len(t, view.Edges, len(ds.Edges))
}

func TestApply_ThresholdRecountedFromEdges(t *testing.T) {
	ds := mixed(t)

	// 1 Main St has 3 distinct contributors, 7 Pine Rd has 3 as well
	view, err := Apply(ds.Nodes, ds.Edges, Params{MinContributorsPerAddress: 3})
	require.NoError(t, err)
	assert.Len(t, view.AddressNodes(), 2)

	// Dropping edges changes the recount even though the stored stats say 3
	trimmed := ds.Edges[:len(ds.Edges)-1]
	view, err = Apply(ds.Nodes, trimmed, Params{MinContributorsPerAddress: 3})
	require.NoError(t, err)
	assert.Len(t, view.AddressNodes(), 1)
	assertClosed(t, view)
}

func TestApply_EmptyThresholdKeepsContributors(t *testing.T) {
	ds := scenario(t)

	view, err := Apply(ds.Nodes, ds.Edges, Params{MinContributorsPerAddress: 50})
	require.NoError(t, err)
	assert.Empty(t, view.AddressNodes())
	assert.Empty(t, view.Edges)
	assert.Len(t, view.ContributorNodes(), 2, "contributors stay listed without any address")
}

func TestApply_DoesNotMutateInputs(t *testing.T) {
	ds := mixed(t)
	nodes := make([]models.Node, len(ds.Nodes))
	copy(nodes, ds.Nodes)
	edges := make([]models.Edge, len(ds.Edges))
	copy(edges, ds.Edges)

	view, err := Apply(ds.Nodes, ds.Edges, Params{MinContributorsPerAddress: 2})
	require.NoError(t, err)

	*view.Nodes[0].ContribType = "changed"
	view.Nodes[1].Label = "changed"
	view.Edges[0].TxCount = 99

	assert.Equal(t, nodes, ds.Nodes)
	assert.Equal(t, edges, ds.Edges)
	assert.Equal(t, "Individual", *ds.Nodes[0].ContribType)
}

func TestApply_Deterministic(t *testing.T) {
	ds := mixed(t)
	params := Params{ContributorTypes: []string{"Individual", "PAC"}, MinContributorsPerAddress: 2, AmountRange: rng(0, 6000)}

	first, err := Apply(ds.Nodes, ds.Edges, params)
	require.NoError(t, err)
	second, err := Apply(ds.Nodes, ds.Edges, params)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"valid", Params{MinContributorsPerAddress: 2, AmountRange: rng(0, 10)}, false},
		{"single point range", Params{MinContributorsPerAddress: 1, AmountRange: rng(5, 5)}, false},
		{"no range", Params{MinContributorsPerAddress: 1}, false},
		{"zero threshold", Params{MinContributorsPerAddress: 0}, true},
		{"inverted range", Params{MinContributorsPerAddress: 2, AmountRange: rng(10, 0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}

	ds := scenario(t)
	_, err := Apply(ds.Nodes, ds.Edges, Params{MinContributorsPerAddress: 2, AmountRange: rng(10, 0)})
	assert.True(t, errors.IsValidation(err))
}

func TestParams_Key(t *testing.T) {
	a := Params{ContributorTypes: []string{"PAC", "Individual"}, MinContributorsPerAddress: 2}
	b := Params{ContributorTypes: []string{"Individual", "PAC"}, MinContributorsPerAddress: 2}
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, []string{"PAC", "Individual"}, a.ContributorTypes, "Key must not reorder the caller's slice")

	c := b
	c.AmountRange = rng(0, 10)
	assert.NotEqual(t, b.Key(), c.Key())

	d := b
	d.MinContributorsPerAddress = 3
	assert.NotEqual(t, b.Key(), d.Key())
}

func TestDefaultTypes(t *testing.T) {
	all, selected := DefaultTypes(mixed(t).Nodes)
	assert.Equal(t, []string{"Committee", "Individual", "PAC", "individual"}, all)
	assert.Equal(t, []string{"Individual", "individual"}, selected)

	ds, err := graph.Build([]models.ContributionRecord{
		contribution("X", "PAC", "a", 1),
		contribution("Y", "Committee", "a", 1),
	}, 2)
	require.NoError(t, err)
	all, selected = DefaultTypes(ds.Nodes)
	assert.Equal(t, all, selected, "no individual category selects everything")
}

func TestAmountBounds(t *testing.T) {
	bounds, ok := AmountBounds(mixed(t).Nodes)
	require.True(t, ok)
	assert.True(t, bounds.Min.Equal(decimal.NewFromInt(20)), "Dana is the smallest node, got %s", bounds.Min)
	assert.True(t, bounds.Max.Equal(decimal.NewFromInt(5250)), "1 Main St is the largest node, got %s", bounds.Max)

	_, ok = AmountBounds(nil)
	assert.False(t, ok)
}

func TestParseRange(t *testing.T) {
	nodes := mixed(t).Nodes

	r, err := ParseRange(nodes, "", "")
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = ParseRange(nodes, "100", "")
	require.NoError(t, err)
	assert.Equal(t, "100", r.Min.String())
	assert.Equal(t, "5250", r.Max.String())

	r, err = ParseRange(nodes, "", " 300.5 ")
	require.NoError(t, err)
	assert.Equal(t, "20", r.Min.String())
	assert.Equal(t, "300.5", r.Max.String())

	r, err = ParseRange(nil, "", "10")
	require.NoError(t, err)
	assert.Equal(t, "10", r.Min.String())
	assert.Equal(t, "10", r.Max.String())

	_, err = ParseRange(nodes, "ten", "")
	assert.True(t, errors.IsValidation(err))
	_, err = ParseRange(nodes, "", "$5")
	assert.True(t, errors.IsValidation(err))
}
