package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/ingest"
	"github.com/rohankatakam/addrlinks/internal/logging"
	"github.com/rohankatakam/addrlinks/internal/models"
)

// DefaultMinContributorsAtAddress is the build-time floor when none is configured
const DefaultMinContributorsAtAddress = 2

// IDScheme selects how group and contributor ids are derived
type IDScheme string

const (
	// IDSchemeSequential numbers groups and contributors by first occurrence (0, 1, 2, ...)
	IDSchemeSequential IDScheme = "sequential"
	// IDSchemeContentHash derives ids from a hash of the address or name, so they
	// survive reordering of the input rows
	IDSchemeContentHash IDScheme = "hash"
)

// Options configures a Builder
type Options struct {
	MinContributorsAtAddress int
	IDScheme                 IDScheme
}

// DefaultOptions returns the default build options
func DefaultOptions() Options {
	return Options{
		MinContributorsAtAddress: DefaultMinContributorsAtAddress,
		IDScheme:                 IDSchemeSequential,
	}
}

// Builder turns contribution records into the shared-address graph.
// A Builder holds no state between calls and is safe for concurrent use.
type Builder struct {
	opts Options
}

// NewBuilder creates a graph builder instance
func NewBuilder(opts Options) *Builder {
	if opts.IDScheme == "" {
		opts.IDScheme = IDSchemeSequential
	}
	return &Builder{opts: opts}
}

// Build runs the builder with default options and the given floor
func Build(records []models.ContributionRecord, minContributors int) (*models.Dataset, error) {
	opts := DefaultOptions()
	opts.MinContributorsAtAddress = minContributors
	return NewBuilder(opts).Build(records)
}

// addressGroup accumulates one exact full_address (or pre-assigned group_id)
type addressGroup struct {
	id      string
	label   string
	order   int
	names   map[string]struct{}
	total   decimal.Decimal
	txCount int
}

type contributor struct {
	id      string
	name    string
	ctype   string
	total   decimal.Decimal
	txCount int
}

type edgeKey struct {
	contrib int
	group   int
}

type edgeAgg struct {
	txCount int
	total   decimal.Decimal
}

// Build constructs nodes, edges and the top shared address table. Any
// invalid record fails the whole build; nothing partial is returned.
func (b *Builder) Build(records []models.ContributionRecord) (*models.Dataset, error) {
	if b.opts.MinContributorsAtAddress < 1 {
		return nil, errors.ValidationErrorf("min_contributors_at_address must be >= 1, got %d",
			b.opts.MinContributorsAtAddress)
	}

	for _, rec := range records {
		if err := ingest.ValidateRecord(rec); err != nil {
			return nil, err
		}
	}

	groups, recordGroup := b.groupRecords(records)

	shared := make([]*addressGroup, 0, len(groups))
	for _, g := range groups {
		if len(g.names) >= b.opts.MinContributorsAtAddress {
			shared = append(shared, g)
		}
	}

	// Everything below only sees records at shared addresses, so contributor
	// totals reflect their participation there and nothing else.
	var (
		contributors []*contributor
		byName       = make(map[string]int)
		edges        = make(map[edgeKey]*edgeAgg)
		retained     int
	)
	for i, rec := range records {
		g := recordGroup[i]
		if len(g.names) < b.opts.MinContributorsAtAddress {
			continue
		}
		retained++

		ci, ok := byName[rec.ContributorName]
		if !ok {
			ci = len(contributors)
			byName[rec.ContributorName] = ci
			contributors = append(contributors, &contributor{
				id:    b.contributorID(ci, rec.ContributorName),
				name:  rec.ContributorName,
				ctype: rec.ContributorType,
			})
		}
		c := contributors[ci]
		c.total = c.total.Add(rec.Amount)
		c.txCount++

		key := edgeKey{contrib: ci, group: g.order}
		e, ok := edges[key]
		if !ok {
			e = &edgeAgg{}
			edges[key] = e
		}
		e.total = e.total.Add(rec.Amount)
		e.txCount++
	}

	ds := &models.Dataset{
		Nodes:     make([]models.Node, 0, len(contributors)+len(shared)),
		Edges:     make([]models.Edge, 0, len(edges)),
		TopShared: make([]models.TopSharedAddress, 0, len(shared)),
	}

	for _, c := range contributors {
		ctype := c.ctype
		ds.Nodes = append(ds.Nodes, models.Node{
			ID:          models.ContributorIDPrefix + c.id,
			Label:       c.name,
			Type:        models.NodeTypeContributor,
			ContribType: &ctype,
			TotalAmount: c.total,
			TxCount:     c.txCount,
		})
	}
	for _, g := range shared {
		count := len(g.names)
		ds.Nodes = append(ds.Nodes, models.Node{
			ID:           models.AddressIDPrefix + g.id,
			Label:        g.label,
			Type:         models.NodeTypeAddress,
			TotalAmount:  g.total,
			TxCount:      g.txCount,
			Contributors: &count,
		})
	}

	keys := make([]edgeKey, 0, len(edges))
	for k := range edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].contrib != keys[j].contrib {
			return keys[i].contrib < keys[j].contrib
		}
		return keys[i].group < keys[j].group
	})
	for _, k := range keys {
		g := groups[k.group]
		e := edges[k]
		ds.Edges = append(ds.Edges, models.Edge{
			Source:      models.ContributorIDPrefix + contributors[k.contrib].id,
			Target:      models.AddressIDPrefix + g.id,
			EdgeType:    models.EdgeTypeAtAddress,
			Address:     g.label,
			TxCount:     e.txCount,
			TotalAmount: e.total,
		})
	}

	for _, g := range shared {
		ds.TopShared = append(ds.TopShared, models.TopSharedAddress{
			GroupID:      g.id,
			FullAddress:  g.label,
			Contributors: len(g.names),
			TotalAmount:  g.total,
			TxCount:      g.txCount,
		})
	}
	SortTopShared(ds.TopShared)

	ds.Manifest = &models.BuildManifest{
		MinContributorsAtAddress: b.opts.MinContributorsAtAddress,
		RecordCount:              len(records),
		AddressCount:             len(shared),
		ContributorCount:         len(contributors),
		EdgeCount:                len(ds.Edges),
	}

	logging.Component("graph").Info("graph built",
		"records", len(records),
		"retained_records", retained,
		"groups", len(groups),
		"shared_addresses", len(shared),
		"contributors", len(contributors),
		"edges", len(ds.Edges),
		"min_contributors", b.opts.MinContributorsAtAddress)

	return ds, nil
}

// groupRecords assigns every record to an address group in first-occurrence
// order and aggregates the pre-filter group statistics. Ids from a
// group_id cell are used as-is; derived ids skip any id the input supplies.
func (b *Builder) groupRecords(records []models.ContributionRecord) ([]*addressGroup, []*addressGroup) {
	var (
		groups      []*addressGroup
		byKey       = make(map[string]*addressGroup)
		taken       = make(map[string]struct{})
		recordGroup = make([]*addressGroup, len(records))
	)
	for _, rec := range records {
		if rec.GroupID != "" {
			taken[rec.GroupID] = struct{}{}
		}
	}

	for i, rec := range records {
		// Pre-assigned ids and raw addresses live in separate key spaces
		key := "a\x00" + rec.FullAddress
		if rec.GroupID != "" {
			key = "g\x00" + rec.GroupID
		}

		g, ok := byKey[key]
		if !ok {
			id := rec.GroupID
			if id == "" {
				id = b.groupID(len(groups), rec.FullAddress, taken)
				taken[id] = struct{}{}
			}
			g = &addressGroup{
				id:    id,
				label: rec.FullAddress,
				order: len(groups),
				names: make(map[string]struct{}),
			}
			groups = append(groups, g)
			byKey[key] = g
		}

		g.names[rec.ContributorName] = struct{}{}
		g.total = g.total.Add(rec.Amount)
		g.txCount++
		recordGroup[i] = g
	}

	return groups, recordGroup
}

// groupID derives an id for an address without a group_id cell. Sequential
// ids count up from the ordinal past taken ones; content ids get a numeric
// suffix on collision.
func (b *Builder) groupID(ordinal int, address string, taken map[string]struct{}) string {
	if b.opts.IDScheme == IDSchemeContentHash {
		id := contentID(address)
		for n := 1; ; n++ {
			if _, used := taken[id]; !used {
				return id
			}
			id = fmt.Sprintf("%s-%d", contentID(address), n)
		}
	}
	for n := ordinal; ; n++ {
		id := strconv.Itoa(n)
		if _, used := taken[id]; !used {
			return id
		}
	}
}

func (b *Builder) contributorID(ordinal int, name string) string {
	if b.opts.IDScheme == IDSchemeContentHash {
		return contentID(name)
	}
	return strconv.Itoa(ordinal)
}

// contentID is a short stable id derived from the exact string
func contentID(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:6])
}

// SortTopShared orders rows by distinct contributors then total amount, both
// descending. The sort is stable so equal rows keep group order.
func SortTopShared(rows []models.TopSharedAddress) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Contributors != rows[j].Contributors {
			return rows[i].Contributors > rows[j].Contributors
		}
		return rows[i].TotalAmount.GreaterThan(rows[j].TotalAmount)
	})
}
