package formatter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tordrt/schemamap/internal/schema"
)

func sampleEdges() map[string][]schema.ForeignKeyEdge {
	return map[string][]schema.ForeignKeyEdge{
		"public": {
			{Table: "orders", Column: "user_id", ForeignTable: "users", ForeignColumn: "id", ConstraintName: "orders_user_id_fkey"},
			{Table: "orders", Column: "product_id", ForeignTable: "products", ForeignColumn: "id", ConstraintName: "orders_product_id_fkey"},
		},
		"audit": {},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{name: "json", want: FormatJSON},
		{name: "YAML", want: FormatYAML},
		{name: "yml", want: FormatYAML},
		{name: " xml ", want: FormatXML},
		{name: "markdown", want: FormatJSON},
		{name: "", want: FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFormat(tt.name))
		})
	}
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("Yml"))
	assert.True(t, Known("json"))
	assert.False(t, Known("csv"))
	assert.False(t, Known(""))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "json", FormatJSON.Extension())
	assert.Equal(t, "yaml", FormatYAML.Extension())
	assert.Equal(t, "xml", FormatXML.Extension())
	assert.Equal(t, "json", Format("toml").Extension())
}

func TestEncode_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatJSON, sampleEdges()))

	assert.True(t, strings.HasPrefix(buf.String(), "{\n  \"audit\": []"), buf.String())

	var decoded map[string][]schema.ForeignKeyEdge
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, sampleEdges(), decoded)
}

func TestEncode_YAML(t *testing.T) {
	size := "8192 bytes"
	stats := map[string][]schema.TableStat{
		"public": {
			{Table: "orders", Size: &size},
			{Table: "123"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatYAML, stats))
	out := buf.String()

	// struct field order survives the trip through JSON
	assert.Less(t, strings.Index(out, "table: orders"), strings.Index(out, "size: 8192 bytes"))
	assert.Less(t, strings.Index(out, "size: 8192 bytes"), strings.Index(out, "row_count: null"))
	assert.NotContains(t, out, "{")
	assert.NotContains(t, out, `"orders"`)

	var decoded map[string][]map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded["public"], 2)
	// a numeric-looking string stays a string
	assert.Equal(t, "123", decoded["public"][1]["table"])
	assert.Nil(t, decoded["public"][1]["size"])
}

func TestEncode_XML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatXML, sampleEdges()))
	assert.True(t, strings.HasPrefix(buf.String(), "<?xml"))

	doc, err := xmlquery.Parse(&buf)
	require.NoError(t, err)

	items := xmlquery.Find(doc, "/database/public/item")
	require.Len(t, items, 2)
	assert.Equal(t, "orders_user_id_fkey", items[0].SelectElement("constraint_name").InnerText())
	assert.Equal(t, "products", items[1].SelectElement("foreign_table").InnerText())

	audit := xmlquery.FindOne(doc, "/database/audit")
	require.NotNil(t, audit)
	assert.Empty(t, xmlquery.Find(audit, "item"))
}

func TestEncode_XMLInvalidNamesAndNulls(t *testing.T) {
	count := int64(42)
	data := map[string]map[string]schema.TableStat{
		"dbo": {
			"order details": {Table: "order details", RowCount: &count},
			"2024_archive":  {Table: "2024_archive"},
			"xml_exports":   {Table: "x & y <z>"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatXML, data))

	doc, err := xmlquery.Parse(&buf)
	require.NoError(t, err)

	keyed := xmlquery.FindOne(doc, `/database/dbo/key[@name="order details"]`)
	require.NotNil(t, keyed)
	assert.Equal(t, "42", keyed.SelectElement("row_count").InnerText())
	assert.Equal(t, "", keyed.SelectElement("size").InnerText())

	assert.NotNil(t, xmlquery.FindOne(doc, `/database/dbo/key[@name="2024_archive"]`))

	escaped := xmlquery.FindOne(doc, `/database/dbo/key[@name="xml_exports"]/table`)
	require.NotNil(t, escaped)
	assert.Equal(t, "x & y <z>", escaped.InnerText())
}

func TestValidElementName(t *testing.T) {
	assert.True(t, validElementName("public"))
	assert.True(t, validElementName("order_items"))
	assert.True(t, validElementName("_tmp.v2-x"))
	assert.False(t, validElementName(""))
	assert.False(t, validElementName("1st"))
	assert.False(t, validElementName("with space"))
	assert.False(t, validElementName("ns:tag"))
	assert.False(t, validElementName("XmlData"))
}
