// Package inference recovers relationships that are not declared as foreign
// keys, using the <noun>_id column naming convention.
//
// The heuristics are deliberately simple. The referenced column is always
// assumed to be "id" (see AssumedPrimaryKey), the referenced table is never
// checked for that column, and the first candidate spelling that names an
// existing table wins even if a later one would fit better.
package inference

import (
	"strings"

	"github.com/tordrt/schemamap/internal/schema"
)

// AssumedPrimaryKey is the referenced column reported on every inferred edge.
// Tables keyed by anything else still get edges pointing at "id".
const AssumedPrimaryKey = "id"

const keySuffix = "_id"

// Root strips the _id suffix from a column name. It returns false for columns
// that do not follow the convention, including a column named exactly "id".
func Root(column string) (string, bool) {
	if column == AssumedPrimaryKey || !strings.HasSuffix(column, keySuffix) {
		return "", false
	}
	return strings.TrimSuffix(column, keySuffix), true
}

// CandidateTables lists the table spellings tried for a root, in precedence
// order. Empty spellings are dropped.
func CandidateTables(root string) []string {
	candidates := []string{root, root + "s", root + "es"}

	// A root that is already plural in -ies: try it minus the final character.
	if strings.HasSuffix(root, "ies") {
		candidates = append(candidates, root[:len(root)-1])
	}

	if i := strings.LastIndex(root, "_"); i >= 0 {
		last := root[i+1:]
		candidates = append(candidates, last, last+"s")
	}

	out := candidates[:0]
	for _, c := range candidates {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Match checks a single column against the known table names and returns the
// inferred edge for the first matching candidate.
func Match(table, column string, tables map[string]bool) (schema.InferredEdge, bool) {
	root, ok := Root(column)
	if !ok {
		return schema.InferredEdge{}, false
	}

	for _, candidate := range CandidateTables(root) {
		if !tables[candidate] {
			continue
		}
		confidence := schema.ConfidenceMedium
		if candidate == root {
			confidence = schema.ConfidenceHigh
		}
		return schema.InferredEdge{
			FromTable:  table,
			FromColumn: column,
			ToTable:    candidate,
			ToColumn:   AssumedPrimaryKey,
			Confidence: confidence,
		}, true
	}
	return schema.InferredEdge{}, false
}

// Infer runs Match over every column, in the order given. Columns of ignored
// tables are skipped, and ignored tables are removed from the match set so
// they cannot appear on either end of an edge. Columns with no matching table
// produce nothing.
func Infer(columns []schema.ColumnRef, tables map[string]bool, ignored schema.IgnoreSet) []schema.InferredEdge {
	known := make(map[string]bool, len(tables))
	for name, ok := range tables {
		if ok && !ignored.Contains(name) {
			known[name] = true
		}
	}

	edges := []schema.InferredEdge{}
	for _, col := range columns {
		if ignored.Contains(col.Table) {
			continue
		}
		if edge, ok := Match(col.Table, col.Column, known); ok {
			edges = append(edges, edge)
		}
	}
	return edges
}
