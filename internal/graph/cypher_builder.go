package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// CypherBuilder builds safe, parameterized Cypher queries
// Security: Labels are validated identifiers, ALL values go through parameters
type CypherBuilder struct {
	params  map[string]any
	counter int
}

// NewCypherBuilder creates a query builder
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{
		params: make(map[string]any),
	}
}

// AddParam adds a parameter and returns its placeholder
func (b *CypherBuilder) AddParam(value any) string {
	paramName := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[paramName] = value
	return "$" + paramName
}

// Params returns all parameters for the query
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// BuildUnwindMergeNodes creates a batched MERGE over one label. Each row is
// {id: ..., props: {...}}.
func (b *CypherBuilder) BuildUnwindMergeNodes(label string, nodes []GraphNode) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s (must be alphanumeric + underscore)", label)
	}

	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n.Label != label {
			return "", fmt.Errorf("node %s has label %s, expected %s", n.ID, n.Label, label)
		}
		if err := validateKeys(n.Properties); err != nil {
			return "", err
		}
		rows = append(rows, map[string]any{"id": n.ID, "props": n.Properties})
	}
	rowsParam := b.AddParam(rows)

	return fmt.Sprintf(
		"UNWIND %s AS row MERGE (n:%s {id: row.id}) SET n += row.props",
		rowsParam, label,
	), nil
}

// BuildUnwindMergeEdges creates a batched edge MERGE between two labels.
// Each row is {from: ..., to: ..., props: {...}}.
func (b *CypherBuilder) BuildUnwindMergeEdges(fromLabel, toLabel, edgeLabel string, edges []GraphEdge) (string, error) {
	for _, id := range []string{fromLabel, toLabel, edgeLabel} {
		if !isValidIdentifier(id) {
			return "", fmt.Errorf("invalid identifier: %s", id)
		}
	}

	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if err := validateKeys(e.Properties); err != nil {
			return "", err
		}
		rows = append(rows, map[string]any{"from": e.From, "to": e.To, "props": e.Properties})
	}
	rowsParam := b.AddParam(rows)

	return fmt.Sprintf(
		"UNWIND %s AS row MATCH (from:%s {id: row.from}) MATCH (to:%s {id: row.to}) "+
			"MERGE (from)-[r:%s]->(to) SET r += row.props RETURN count(r) AS count",
		rowsParam, fromLabel, toLabel, edgeLabel,
	), nil
}

// BuildUniqueConstraint creates an idempotent uniqueness constraint on label.id
func (b *CypherBuilder) BuildUniqueConstraint(label string) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s", label)
	}
	return fmt.Sprintf(
		"CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
		strings.ToLower(label), label,
	), nil
}

// BuildDetachDelete removes every node carrying one of the labels
func (b *CypherBuilder) BuildDetachDelete(labels ...string) (string, error) {
	if len(labels) == 0 {
		return "", fmt.Errorf("no labels to delete")
	}
	conds := make([]string, 0, len(labels))
	for _, l := range labels {
		if !isValidIdentifier(l) {
			return "", fmt.Errorf("invalid node label: %s", l)
		}
		conds = append(conds, "n:"+l)
	}
	return fmt.Sprintf("MATCH (n) WHERE %s DETACH DELETE n", strings.Join(conds, " OR ")), nil
}

// BuildCountNodes counts the nodes carrying label
func (b *CypherBuilder) BuildCountNodes(label string) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s", label)
	}
	return fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS count", label), nil
}

// BuildCountEdges counts the relationships of one type
func (b *CypherBuilder) BuildCountEdges(edgeLabel string) (string, error) {
	if !isValidIdentifier(edgeLabel) {
		return "", fmt.Errorf("invalid relationship type: %s", edgeLabel)
	}
	return fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r) AS count", edgeLabel), nil
}

func validateKeys(props map[string]any) error {
	for key := range props {
		if !isValidIdentifier(key) {
			return fmt.Errorf("invalid property key: %s (must be alphanumeric + underscore)", key)
		}
	}
	return nil
}

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier validates that a string can be safely used as a Cypher identifier
// Only allows alphanumeric characters and underscores (prevents injection)
func isValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}
