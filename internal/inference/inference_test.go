package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemamap/internal/schema"
)

func tableSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func TestRoot(t *testing.T) {
	t.Parallel()
	tests := []struct {
		column   string
		wantRoot string
		wantOK   bool
	}{
		{"customer_id", "customer", true},
		{"order_item_id", "order_item", true},
		{"_id", "", true},
		{"id", "", false},
		{"paid", "", false},
		{"customer", "", false},
		{"customer_ID", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			t.Parallel()
			root, ok := Root(tt.column)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantRoot, root)
		})
	}
}

func TestCandidateTables(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		root string
		want []string
	}{
		{"simple", "customer", []string{"customer", "customers", "customeres"}},
		{"ies root", "categories", []string{"categories", "categoriess", "categorieses", "categorie"}},
		{"underscore", "order_item", []string{"order_item", "order_items", "order_itemes", "item", "items"}},
		{"trailing underscore", "order_", []string{"order_", "order_s", "order_es", "s"}},
		{"empty root", "", []string{"s", "es"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CandidateTables(tt.root))
		})
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		tables    map[string]bool
		column    string
		wantMatch bool
		wantTable string
		wantConf  schema.Confidence
	}{
		{"exact singular", tableSet("customer", "order"), "customer_id", true, "customer", schema.ConfidenceHigh},
		{"plural s", tableSet("customers"), "customer_id", true, "customers", schema.ConfidenceMedium},
		{"plural es", tableSet("boxes"), "box_id", true, "boxes", schema.ConfidenceMedium},
		{"singular beats plural", tableSet("customer", "customers"), "customer_id", true, "customer", schema.ConfidenceHigh},
		{"underscore last segment plural", tableSet("items"), "order_item_id", true, "items", schema.ConfidenceMedium},
		{"underscore last segment singular first", tableSet("item", "items"), "order_item_id", true, "item", schema.ConfidenceMedium},
		{"full root beats segment", tableSet("order_items", "items"), "order_item_id", true, "order_items", schema.ConfidenceMedium},
		{"ies root", tableSet("categorie"), "categories_id", true, "categorie", schema.ConfidenceMedium},
		{"no matching table", tableSet("users"), "widget_id", false, "", ""},
		{"plain id", tableSet("id"), "id", false, "", ""},
		{"not a key column", tableSet("user"), "username", false, "", ""},
		{"bare suffix needs non-empty candidate", tableSet(""), "_id", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			edge, ok := Match("orders", tt.column, tt.tables)
			require.Equal(t, tt.wantMatch, ok)
			if !ok {
				return
			}
			assert.Equal(t, "orders", edge.FromTable)
			assert.Equal(t, tt.column, edge.FromColumn)
			assert.Equal(t, tt.wantTable, edge.ToTable)
			assert.Equal(t, AssumedPrimaryKey, edge.ToColumn)
			assert.Equal(t, tt.wantConf, edge.Confidence)
		})
	}
}

func TestMatch_HighConfidenceWheneverRootIsATable(t *testing.T) {
	t.Parallel()
	roots := []string{"customer", "order_item", "status", "categories", "a"}
	for _, root := range roots {
		// Every other candidate spelling also exists; the exact root must still win.
		tables := tableSet(CandidateTables(root)...)
		edge, ok := Match("t", root+"_id", tables)
		require.True(t, ok, root)
		assert.Equal(t, root, edge.ToTable)
		assert.Equal(t, schema.ConfidenceHigh, edge.Confidence)
	}
}

func TestInfer(t *testing.T) {
	t.Parallel()
	columns := []schema.ColumnRef{
		{Table: "audit_log", Column: "user_id"},
		{Table: "line_item", Column: "order_item_id"},
		{Table: "orders", Column: "customer_id"},
		{Table: "orders", Column: "session_id"},
		{Table: "orders", Column: "warehouse_id"},
	}
	tables := tableSet("audit_log", "customer", "items", "line_item", "orders", "users", "warehouses")
	ignored := schema.NewIgnoreSet([]string{"audit_log", "warehouses"})

	edges := Infer(columns, tables, ignored)

	assert.Equal(t, []schema.InferredEdge{
		{FromTable: "line_item", FromColumn: "order_item_id", ToTable: "items", ToColumn: "id", Confidence: schema.ConfidenceMedium},
		{FromTable: "orders", FromColumn: "customer_id", ToTable: "customer", ToColumn: "id", Confidence: schema.ConfidenceHigh},
	}, edges)
}

func TestInfer_NoMatchesIsEmptyNotNil(t *testing.T) {
	t.Parallel()
	edges := Infer([]schema.ColumnRef{{Table: "orders", Column: "ghost_id"}}, tableSet("orders"), nil)
	assert.NotNil(t, edges)
	assert.Empty(t, edges)
}

func TestInfer_Deterministic(t *testing.T) {
	t.Parallel()
	columns := []schema.ColumnRef{
		{Table: "a", Column: "b_id"},
		{Table: "b", Column: "a_id"},
		{Table: "c", Column: "bs_id"},
	}
	tables := tableSet("a", "b", "bses", "c")

	first := Infer(columns, tables, nil)
	second := Infer(columns, tables, nil)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}
